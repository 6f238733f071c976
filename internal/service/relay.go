package service

import (
	"context"
	"fmt"
	"strconv"

	"campus-attendance/internal/mattermost"
	"campus-attendance/internal/model"
)

var relayColors = map[model.NotificationType]string{
	model.NotificationSuccess: "#2e7d32",
	model.NotificationError:   "#c62828",
	model.NotificationWarning: "#f9a825",
	model.NotificationInfo:    "#1565c0",
}

// ChatRelay stores notifications through next and echoes leave notifications to a
// Mattermost channel. A failed post is returned after the notification was stored.
type ChatRelay struct {
	next      Notifier
	chat      *mattermost.Client
	channelID string
}

func NewChatRelay(next Notifier, chat *mattermost.Client, channelID string) *ChatRelay {
	return &ChatRelay{next: next, chat: chat, channelID: channelID}
}

func (r *ChatRelay) Emit(ctx context.Context, n *model.Notification) error {
	if err := r.next.Emit(ctx, n); err != nil {
		return err
	}
	if n.Category != model.NotificationCategoryLeave || n.Details == nil {
		return nil
	}

	d := n.Details
	post := &mattermost.Post{
		ChannelID: r.channelID,
		Message:   "#### " + n.Title,
		Props: mattermost.Props{Attachments: []mattermost.Attachment{{
			Text:  n.Message,
			Color: relayColors[n.Type],
			Fields: []mattermost.Field{
				{Title: "User", Value: n.UserID, Short: true},
				{Title: "Type", Value: string(d.LeaveType), Short: true},
				{Title: "From", Value: d.FromDate, Short: true},
				{Title: "To", Value: d.ToDate, Short: true},
				{Title: "Days", Value: strconv.Itoa(d.Days), Short: true},
				{Title: "Status", Value: string(d.Status) + " @ " + d.CurrentApprovalLevel, Short: true},
			},
		}}},
	}
	if _, err := r.chat.CreatePost(ctx, post); err != nil {
		return fmt.Errorf("relay notification %s: %w", n.ID, err)
	}
	return nil
}
