package session

// State is the per-guild session lifecycle. Exactly one session can be
// active per guild; a new trigger supersedes the old connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAnnouncingStartup
	StateAnnouncingSession
	StateAwaitingEnd
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAnnouncingStartup:
		return "announcing_startup"
	case StateAnnouncingSession:
		return "announcing_session"
	case StateAwaitingEnd:
		return "awaiting_end"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
