// Package core wires every component into one bootable process, per §4.9's
// CoreServices glue: load config, connect storage + presence + broker, then
// run the gateway listener and a single debounce worker under
// golang.org/x/sync/errgroup until the context is cancelled. That one
// worker serves both ack and mention-processing keys and dispatches push
// jobs from its flush handler; there is no separate worker per push
// transport or per payload kind. This follows the teacher's cobra-command-
// starts-background-goroutines-then-blocks-on-signal shape in
// cmd/gateway.go, generalized from the agent-bridge's channel adapters to
// this core's gateway/debounce/push workers.
package core

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/embergate/internal/config"
	"github.com/nextlevelbuilder/embergate/internal/debounce"
	"github.com/nextlevelbuilder/embergate/internal/eventbus"
	busamqp "github.com/nextlevelbuilder/embergate/internal/eventbus/amqp"
	busmemory "github.com/nextlevelbuilder/embergate/internal/eventbus/memory"
	"github.com/nextlevelbuilder/embergate/internal/gateway"
	"github.com/nextlevelbuilder/embergate/internal/mutate"
	"github.com/nextlevelbuilder/embergate/internal/presence"
	"github.com/nextlevelbuilder/embergate/internal/push"
	"github.com/nextlevelbuilder/embergate/internal/push/apn"
	"github.com/nextlevelbuilder/embergate/internal/push/fcm"
	"github.com/nextlevelbuilder/embergate/internal/push/webpush"
	"github.com/nextlevelbuilder/embergate/internal/store"
	"github.com/nextlevelbuilder/embergate/internal/store/postgres"
	"github.com/nextlevelbuilder/embergate/internal/store/reference"
	"github.com/nextlevelbuilder/embergate/internal/store/sqlite"
	"github.com/nextlevelbuilder/embergate/internal/telemetry"
	"github.com/nextlevelbuilder/embergate/internal/voice"
)

// shutdownGrace bounds the context handed to Close (telemetry flush and
// backend teardown) once the workers have returned; the workers' own
// shutdown is not covered by it.
const shutdownGrace = 10 * time.Second

// Services holds every long-lived collaborator CoreServices boots.
type Services struct {
	Config   *config.Config
	Bus      eventbus.Bus
	Stores   *store.Stores
	Presence presence.Presence
	Mutator  *mutate.Mutator
	Debounce *debounce.Queue
	Push     *push.Dispatcher
	Voice    *voice.Machine
	Gateway  *gateway.Server

	telemetryShutdown telemetry.Shutdown
	closers           []func() error
}

// Boot constructs every collaborator from cfg without starting any
// goroutines; Run drives the process lifetime.
func Boot(ctx context.Context, cfg *config.Config) (*Services, error) {
	shutdownFn, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("core: telemetry setup: %w", err)
	}

	svc := &Services{Config: cfg, telemetryShutdown: shutdownFn}

	if err := svc.bootBus(cfg); err != nil {
		return nil, err
	}
	if err := svc.bootStores(cfg); err != nil {
		return nil, err
	}
	if err := svc.bootPresence(cfg); err != nil {
		return nil, err
	}

	svc.Debounce = debounce.New(debounce.Config{
		Debounce:      time.Duration(cfg.Gateway.DebounceIntervalMs) * time.Millisecond,
		QueueCapacity: 10_000,
	}, svc.handleDebounceFlush)

	svc.bootPush(cfg)

	svc.Mutator = mutate.New(svc.Stores, svc.Bus, svc.Debounce)
	svc.Gateway = gateway.NewServer(cfg, svc.Bus, svc.Stores)

	if cfg.Voice.Enabled {
		voiceStates := svc.Stores.VoiceStates
		if rs, ok := svc.Presence.(*presence.RedisStore); ok {
			voiceStates = rs
		}
		svc.Voice = voice.New(voiceStates, svc.Bus, svc.Stores, nil)
		svc.Gateway.SetVoice(svc.Voice, &voice.WebhookVerifier{
			APIKey:    cfg.Voice.APIKey,
			APISecret: cfg.Voice.APISecret,
		})
	}

	return svc, nil
}

// bootPush wires whichever transports are enabled in cfg.Push. Transports
// left disabled are simply absent from the Dispatcher's map; Dispatch
// silently no-ops for a subscription whose endpoint has no transport.
func (s *Services) bootPush(cfg *config.Config) {
	transports := make(map[push.Endpoint]push.Transport)
	if cfg.Push.APN.Enabled {
		if key, err := loadAPNKey(cfg.Push.APN.KeyPath); err != nil {
			slog.Warn("core.apn_key_load_failed", "error", err)
		} else {
			transports[push.EndpointAPN] = apn.New(apn.Config{
				KeyID: cfg.Push.APN.KeyID, TeamID: cfg.Push.APN.TeamID,
				Topic: cfg.Push.APN.Topic, PrivateKey: key, Production: cfg.Push.APN.Production,
			})
		}
	}
	if cfg.Push.FCM.Enabled {
		if saJSON, err := os.ReadFile(cfg.Push.FCM.ServiceAccountJSONPath); err != nil {
			slog.Warn("core.fcm_credentials_load_failed", "error", err)
		} else if t, err := fcm.New(context.Background(), fcm.Config{ServiceAccountJSON: saJSON}); err != nil {
			slog.Warn("core.fcm_setup_failed", "error", err)
		} else {
			transports[push.EndpointFCM] = t
		}
	}
	if cfg.Push.WebPush.Enabled {
		transports[push.EndpointWebPush] = webpush.New(webpush.Config{
			VAPIDPublicKey:  cfg.Push.WebPush.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.Push.WebPush.VAPIDPrivateKey,
			Subject:         cfg.Push.WebPush.Subject,
		})
	}

	s.Push = &push.Dispatcher{
		Transports: transports,
		Subs:       push.NewMemorySubscriptionStore(),
		Presence:   s.Presence,
		Stores:     s.Stores,
		ChunkSize:  s.Config.Gateway.MemberChunkSize,
	}
}

func loadAPNKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("apn key: no PEM block found in %s", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("apn key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("apn key: not an ECDSA key")
	}
	return ecKey, nil
}

func (s *Services) bootBus(cfg *config.Config) error {
	switch cfg.Broker.Backend {
	case "", "memory":
		maxBytes := cfg.Broker.MemoryMaxBytes
		if maxBytes <= 0 {
			maxBytes = 5_000_000_000
		}
		s.Bus = busmemory.New(maxBytes)
	case "amqp":
		bus, err := busamqp.Dial(cfg.Broker.AMQPURL)
		if err != nil {
			return fmt.Errorf("core: dial amqp broker: %w", err)
		}
		s.Bus = bus
		s.closers = append(s.closers, bus.Close)
	default:
		return fmt.Errorf("core: unknown broker backend %q", cfg.Broker.Backend)
	}
	return nil
}

func (s *Services) bootStores(cfg *config.Config) error {
	switch cfg.Storage.Backend {
	case "", "memory":
		s.Stores = reference.New()
	case "postgres":
		db, err := postgres.OpenDB(cfg.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("core: open postgres: %w", err)
		}
		s.Stores = postgres.NewStores(db)
		s.closers = append(s.closers, db.Close)
	case "sqlite":
		path := cfg.Storage.SQLitePath
		if path == "" {
			path = "embergate.db"
		}
		db, err := sqlite.OpenDB(path)
		if err != nil {
			return fmt.Errorf("core: open sqlite: %w", err)
		}
		s.Stores = sqlite.NewStores(db)
		s.closers = append(s.closers, db.Close)
	default:
		return fmt.Errorf("core: unknown storage backend %q", cfg.Storage.Backend)
	}
	return nil
}

func (s *Services) bootPresence(cfg *config.Config) error {
	switch cfg.Presence.Backend {
	case "", "memory":
		s.Presence = presence.NewMemoryStore()
	case "redis":
		opts, err := redis.ParseURL(cfg.Presence.RedisURL)
		if err != nil {
			return fmt.Errorf("core: parse redis url: %w", err)
		}
		s.Presence = presence.NewRedisStore(redis.NewClient(opts))
	default:
		return fmt.Errorf("core: unknown presence backend %q", cfg.Presence.Backend)
	}
	return nil
}

// handleDebounceFlush is the DebounceQueue handler installed at Boot.
// AckMessage flushes are only logged: no unread record is written and no
// ack notification is emitted, since the store interfaces have no unread
// capability. ProcessMessage flushes dispatch one push notification to each
// distinct recipient across the coalesced messages.
func (s *Services) handleDebounceFlush(_ context.Context, key debounce.Key, item debounce.Item) error {
	switch key.Kind {
	case debounce.KindAck:
		slog.Info("core.debounce_ack_flush", "user", key.UserID, "channel", key.ChannelID, "message_id", item.AckMessageID)
	case debounce.KindProcessMessage:
		slog.Info("core.debounce_process_flush", "channel", key.ChannelID, "count", len(item.ProcessMessages))
		if s.Push == nil {
			return nil
		}
		recipients := make(map[string]bool)
		for _, entry := range item.ProcessMessages {
			for _, r := range entry.Recipients {
				recipients[r] = true
			}
		}
		for userID := range recipients {
			if err := s.Push.Dispatch(context.Background(), push.Job{
				UserID: userID,
				Notification: push.Notification{
					Kind:  push.KindMessage,
					Title: "New message",
					Body:  fmt.Sprintf("%d new messages", len(item.ProcessMessages)),
				},
			}); err != nil {
				slog.Error("core.push_dispatch_failed", "user", userID, "error", err)
			}
		}
	}
	return nil
}

// Run starts the gateway listener and the debounce worker, and blocks
// until ctx is cancelled or one of them fails. Once both have returned it
// closes every collaborator under a shutdownGrace timeout.
func (s *Services) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		s.Debounce.Run(gctx)
		return nil
	})
	group.Go(func() error {
		return s.Gateway.Start(gctx)
	})

	err := group.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.Close(drainCtx)

	return err
}

// RunWorker drives only the debounce worker (and, through its flush
// handler, the push dispatcher), for a deployment that splits the
// WebSocket gateway onto its own process and scales debounce/push workers
// independently. It blocks until ctx is cancelled, then closes every
// collaborator under a shutdownGrace timeout.
func (s *Services) RunWorker(ctx context.Context) error {
	s.Debounce.Run(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.Close(drainCtx)

	return nil
}

// Close tears down every collaborator opened during Boot.
func (s *Services) Close(ctx context.Context) {
	if s.telemetryShutdown != nil {
		if err := s.telemetryShutdown(ctx); err != nil {
			slog.Warn("core.telemetry_shutdown_failed", "error", err)
		}
	}
	for _, closer := range s.closers {
		if err := closer(); err != nil {
			slog.Warn("core.closer_failed", "error", err)
		}
	}
}
