package realtime

// Named realtime streams.
const (
	// StreamVerification carries status changes of the user's own verification requests.
	StreamVerification = "verification"
	// StreamNotifications carries in-app notifications.
	StreamNotifications = "notifications"
	// StreamSession carries session lifecycle changes such as profile updates.
	StreamSession = "session"
	// StreamAdminVerifications carries queue changes for moderators.
	StreamAdminVerifications = "admin.verifications"
)

// UserStreams are open to every authenticated user.
var UserStreams = []string{StreamVerification, StreamNotifications, StreamSession}

// AllowedStreams returns the streams a user with role may subscribe to.
func AllowedStreams(isAdmin bool) map[string]struct{} {
	allowed := make(map[string]struct{}, len(UserStreams)+1)
	for _, stream := range UserStreams {
		allowed[stream] = struct{}{}
	}
	if isAdmin {
		allowed[StreamAdminVerifications] = struct{}{}
	}
	return allowed
}
