// Package notify is the notification dispatcher boundary: the engine decides
// *whether* a newly-arrived message warrants an alert, a Notifier decides
// how to deliver it.
package notify

import (
	"context"

	"github.com/chatline/internal/logger"
)

// Notifier delivers an alert for a message that arrived outside the focused
// room. Implementations must be safe for concurrent use and must not block
// the caller for long.
type Notifier interface {
	Notify(ctx context.Context, sender, body, room string)
}

// LogNotifier writes alerts through the logger. It is the default when no
// push configuration is present.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, sender, body, room string) {
	logger.Infof("notify: new message from %s in %s: %s", sender, room, Truncate(body, 120))
}

// NopNotifier discards alerts (notifications disabled).
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string, string) {}

// Truncate shortens s to at most n bytes, ellipsized.
func Truncate(s string, n int) string {
	if n <= 3 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
