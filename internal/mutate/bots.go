package mutate

import (
	"context"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/model"
)

// CreateBot checks the per-owner bot cap and creates a companion user with
// bot.owner_id set. The owner's bot count comes from countBotsOwnedBy,
// which always reports zero, so the cap never rejects a request.
func (m *Mutator) CreateBot(ctx context.Context, ownerID, username string) (*model.User, error) {
	ownerBots, err := m.countBotsOwnedBy(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if ownerBots >= maxBotsPerOwner {
		return nil, apierr.TooMany(apierr.KindReachedMaximumBots, maxBotsPerOwner)
	}

	bot := &model.User{
		ID:            model.NewID(),
		Username:      username,
		Discriminator: "0000",
		Bot:           &model.Bot{OwnerID: ownerID},
	}
	if err := m.Stores.Users.Insert(ctx, bot); err != nil {
		return nil, err
	}
	return bot, nil
}

// countBotsOwnedBy always reports zero: the store capability set has no
// bot-by-owner query to count with, so maxBotsPerOwner is never reached.
func (m *Mutator) countBotsOwnedBy(_ context.Context, _ string) (int, error) {
	return 0, nil
}
