package mutate

import (
	"context"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/debounce"
	"github.com/nextlevelbuilder/embergate/internal/eventbus"
	"github.com/nextlevelbuilder/embergate/internal/model"
	"github.com/nextlevelbuilder/embergate/pkg/protocol"
)

// SendMessageInput carries the validated-at-the-edge fields for a new
// message, per §4.5's SendMessage exemplar contract.
type SendMessageInput struct {
	ChannelID   string
	AuthorID    string
	Content     string
	Attachments []model.Attachment
	Embeds      []model.Embed
	Replies     []model.ReplyRef
	Mentions    []string
	RoleMentions []string
	Nonce       string
}

// SendMessage validates content/attachment/embed/reply counts against
// the package's fixed limits (the same for every user), rejects replayed
// idempotency keys, and publishes Message on the channel topic. Messages bearing mentions are handed to
// the DebounceQueue as a ProcessMessage task for the channel.
func (m *Mutator) SendMessage(ctx context.Context, in SendMessageInput) (*model.Message, error) {
	if in.Content == "" && len(in.Attachments) == 0 && len(in.Embeds) == 0 {
		return nil, apierr.New(apierr.KindEmptyMessage)
	}
	if len(in.Attachments) > maxAttachmentsPerMessage {
		return nil, apierr.TooMany(apierr.KindTooManyAttachments, maxAttachmentsPerMessage)
	}
	if len(in.Embeds) > maxEmbedsPerMessage {
		return nil, apierr.TooMany(apierr.KindTooManyEmbeds, maxEmbedsPerMessage)
	}
	if len(in.Replies) > maxRepliesPerMessage {
		return nil, apierr.TooMany(apierr.KindTooManyReplies, maxRepliesPerMessage)
	}
	if m.consumeNonce(in.Nonce) {
		return nil, apierr.New(apierr.KindDuplicateNonce)
	}

	msg := &model.Message{
		ID:           model.NewID(),
		ChannelID:    in.ChannelID,
		AuthorID:     in.AuthorID,
		Content:      in.Content,
		Attachments:  in.Attachments,
		Embeds:       in.Embeds,
		Replies:      in.Replies,
		Mentions:     in.Mentions,
		RoleMentions: in.RoleMentions,
		Nonce:        in.Nonce,
	}

	if err := m.Stores.Messages.Insert(ctx, msg); err != nil {
		return nil, err
	}

	if ch, err := m.Stores.Channels.Fetch(ctx, in.ChannelID); err == nil {
		ch.LastMessageID = msg.ID
		_ = m.Stores.Channels.Update(ctx, ch)
	}

	if err := m.publish(ctx, eventbus.ChannelTopic(in.ChannelID), protocol.EventV1{
		Type:    protocol.EventMessage,
		Message: msg,
	}); err != nil {
		return nil, err
	}

	if len(in.Mentions) > 0 && m.Debounce != nil {
		m.Debounce.EnqueueProcessMessage(
			debounce.Key{ChannelID: in.ChannelID, Kind: debounce.KindProcessMessage},
			debounce.ProcessEntry{MessageID: msg.ID, Recipients: in.Mentions},
		)
	}

	return msg, nil
}

// UpdateMessage applies partial to the message, sets its edited timestamp,
// and publishes MessageUpdate on the channel topic.
func (m *Mutator) UpdateMessage(ctx context.Context, id, channelID string, partial *model.PartialMessage) error {
	if err := m.Stores.Messages.Update(ctx, id, partial); err != nil {
		return err
	}

	if err := m.publish(ctx, eventbus.ChannelTopic(channelID), protocol.EventV1{
		Type:        protocol.EventMessageUpdate,
		ID:          id,
		ChannelID:   channelID,
		MessageData: partial,
	}); err != nil {
		return err
	}
	return nil
}

// AppendMessage appends embeds to an existing message and publishes
// MessageAppend. Per the Open Question resolution in §9, AppendMessage
// carries only an embeds field.
func (m *Mutator) AppendMessage(ctx context.Context, id, channelID string, append *model.AppendMessage) error {
	if err := m.Stores.Messages.Append(ctx, id, append); err != nil {
		return err
	}
	return m.publish(ctx, eventbus.ChannelTopic(channelID), protocol.EventV1{
		Type:          protocol.EventMessageAppend,
		ID:            id,
		ChannelID:     channelID,
		MessageAppend: append,
	})
}

// DeleteMessage deletes the message and publishes MessageDelete.
func (m *Mutator) DeleteMessage(ctx context.Context, id, channelID string) error {
	if err := m.Stores.Messages.Delete(ctx, id); err != nil {
		return err
	}
	return m.publish(ctx, eventbus.ChannelTopic(channelID), protocol.EventV1{
		Type:      protocol.EventMessageDelete,
		ID:        id,
		ChannelID: channelID,
	})
}

// BulkDeleteMessages deletes ids from channelID in one call and publishes a
// single BulkMessageDelete.
func (m *Mutator) BulkDeleteMessages(ctx context.Context, channelID string, ids []string) error {
	if err := m.Stores.Messages.DeleteByChannel(ctx, channelID, ids); err != nil {
		return err
	}
	return m.publish(ctx, eventbus.ChannelTopic(channelID), protocol.EventV1{
		Type:      protocol.EventBulkMessageDelete,
		ChannelID: channelID,
		IDs:       ids,
	})
}

// React adds a reaction, honouring the message's restrict-reactions
// invariant, and publishes MessageReact.
func (m *Mutator) React(ctx context.Context, id, channelID, emoji, userID string) error {
	msg, err := m.Stores.Messages.Fetch(ctx, id)
	if err != nil {
		return err
	}
	if !msg.ReactionAllowed(emoji) {
		return apierr.New(apierr.KindInvalidOperation)
	}
	if err := m.Stores.Messages.AddReaction(ctx, id, emoji, userID); err != nil {
		return err
	}
	return m.publish(ctx, eventbus.ChannelTopic(channelID), protocol.EventV1{
		Type:      protocol.EventMessageReact,
		ID:        id,
		ChannelID: channelID,
		UserID:    userID,
		EmojiID:   emoji,
	})
}

// Unreact removes one user's reaction and publishes MessageUnreact.
func (m *Mutator) Unreact(ctx context.Context, id, channelID, emoji, userID string) error {
	if err := m.Stores.Messages.RemoveReaction(ctx, id, emoji, userID); err != nil {
		return err
	}
	return m.publish(ctx, eventbus.ChannelTopic(channelID), protocol.EventV1{
		Type:      protocol.EventMessageUnreact,
		ID:        id,
		ChannelID: channelID,
		UserID:    userID,
		EmojiID:   emoji,
	})
}

// ClearReaction removes every user's reaction for emoji and publishes
// MessageRemoveReaction.
func (m *Mutator) ClearReaction(ctx context.Context, id, channelID, emoji string) error {
	if err := m.Stores.Messages.ClearReaction(ctx, id, emoji); err != nil {
		return err
	}
	return m.publish(ctx, eventbus.ChannelTopic(channelID), protocol.EventV1{
		Type:      protocol.EventMessageRemoveReact,
		ID:        id,
		ChannelID: channelID,
		EmojiID:   emoji,
	})
}

// Ack enqueues an AckMessage debounce task for (user, channel), coalescing
// rapid successive acks per §4.6.
func (m *Mutator) Ack(userID, channelID, messageID string) {
	if m.Debounce == nil {
		return
	}
	m.Debounce.EnqueueAck(debounce.Key{UserID: userID, ChannelID: channelID, Kind: debounce.KindAck}, messageID)
}
