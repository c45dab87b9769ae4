package mutate

import (
	"context"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/eventbus"
	"github.com/nextlevelbuilder/embergate/internal/model"
	"github.com/nextlevelbuilder/embergate/pkg/protocol"
)

// AddMemberToGroup appends userID to a Group channel's recipient list,
// publishes ChannelGroupJoin on the channel topic, and inserts a system
// message announcing the join.
func (m *Mutator) AddMemberToGroup(ctx context.Context, channelID, userID string) error {
	ch, err := m.Stores.Channels.Fetch(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.Type != model.ChannelGroup {
		return apierr.New(apierr.KindInvalidOperation)
	}
	if ch.HasRecipient(userID) {
		return apierr.New(apierr.KindAlreadyInGroup)
	}
	if len(ch.Recipients) >= maxGroupRecipients {
		return apierr.TooMany(apierr.KindGroupTooLarge, maxGroupRecipients)
	}

	ch.Recipients = append(ch.Recipients, userID)
	if err := m.Stores.Channels.Update(ctx, ch); err != nil {
		return err
	}

	if err := m.insertSystemMessage(ctx, ch, "user_added", userID); err != nil {
		return err
	}

	return m.publish(ctx, eventbus.ChannelTopic(channelID), protocol.EventV1{
		Type:      protocol.EventChannelGroupJoin,
		ChannelID: channelID,
		UserID:    userID,
	})
}

// RemoveMemberFromGroup removes userID from a Group channel's recipient
// list. Self-removal (leaving) goes through the Leave flow instead — this
// mutator rejects it with CannotRemoveYourself, matching §4.5's exemplar
// contract that distinguishes "leave" from "remove".
func (m *Mutator) RemoveMemberFromGroup(ctx context.Context, channelID, actingUserID, targetUserID string) error {
	if actingUserID == targetUserID {
		return apierr.New(apierr.KindCannotRemoveYourself)
	}
	ch, err := m.Stores.Channels.Fetch(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.Type != model.ChannelGroup {
		return apierr.New(apierr.KindInvalidOperation)
	}
	if !ch.HasRecipient(targetUserID) {
		return apierr.New(apierr.KindNotInGroup)
	}

	ch.Recipients = removeString(ch.Recipients, targetUserID)
	if err := m.Stores.Channels.Update(ctx, ch); err != nil {
		return err
	}

	if err := m.insertSystemMessage(ctx, ch, "user_remove", targetUserID); err != nil {
		return err
	}

	return m.publish(ctx, eventbus.ChannelTopic(channelID), protocol.EventV1{
		Type:      protocol.EventChannelGroupLeave,
		ChannelID: channelID,
		UserID:    targetUserID,
	})
}

func (m *Mutator) insertSystemMessage(ctx context.Context, ch *model.Channel, kind, byUserID string) error {
	sysMsg := &model.Message{
		ID:        model.NewID(),
		ChannelID: ch.ID,
		AuthorID:  byUserID,
		System:    &model.SystemMessage{Kind: kind, ByUserID: byUserID},
	}
	return m.Stores.Messages.Insert(ctx, sysMsg)
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
