package realtime

import (
	"github.com/charlesng35/jasamarket/internal/auth"
)

// SessionSource is satisfied by auth.SessionManager.
type SessionSource interface {
	Subscribe(fn auth.SessionListener) (unsubscribe func())
}

// ForwardSessionEvents pushes session lifecycle events to the affected user's session stream.
// The returned function stops forwarding.
func (h *Hub) ForwardSessionEvents(source SessionSource) (stop func()) {
	return source.Subscribe(func(event auth.SessionEvent) {
		h.BroadcastToUser(StreamSession, event.UserID, Message{
			Event: "session." + string(event.Kind),
			Data:  event,
		})
	})
}
