package notify

import (
	"context"
	"errors"

	"cronbot/internal/job"
	kit "cronbot/internal/transport"
)

// Extra keys the chat notifier reads the destination from.
const (
	ExtraChatID   = "chat_id"
	ExtraThreadID = "thread_id"
)

// DefaultChatPrefix is prepended to every firing sent to a chat.
const DefaultChatPrefix = "cron message "

var ErrNoTarget = errors.New("notify: no chat target")

// Enqueuer accepts outbound chat notifications (internal/notifier.Service).
type Enqueuer interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// Chat sends "<prefix><message>" to the chat stored in the job's extra data,
// or to Fallback when the job carries none.
type Chat struct {
	Out      Enqueuer
	Prefix   string
	Fallback kit.ChatTarget
}

func (c Chat) Notify(ctx context.Context, message string, extra map[string]any) error {
	to, ok := targetFromExtra(extra)
	if !ok {
		to = c.Fallback
	}
	if to.ChatID == 0 {
		return ErrNoTarget
	}
	prefix := c.Prefix
	if prefix == "" {
		prefix = DefaultChatPrefix
	}
	return c.Out.Notify(ctx, kit.Notification{
		Channel: "telegram",
		Target:  to,
		Text:    prefix + message,
		Options: &kit.SendOptions{DisablePreview: true},
	})
}

func targetFromExtra(extra map[string]any) (kit.ChatTarget, bool) {
	p := job.Payload{Extra: extra}
	chatID, ok := p.ExtraInt64(ExtraChatID)
	if !ok || chatID == 0 {
		return kit.ChatTarget{}, false
	}
	threadID, _ := p.ExtraInt64(ExtraThreadID)
	return kit.ChatTarget{ChatID: chatID, ThreadID: int(threadID)}, true
}
