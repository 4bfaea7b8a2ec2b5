package satellite

// State is the protocol state of one satellite connection
type State int

const (
	// StateConnected means the socket is open but no hello was accepted
	StateConnected State = iota
	StateReady
	StateSessionActive
	StateReceivingAudio
	StateWaitingForProcessing
	StatePlayback
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	case StateSessionActive:
		return "session_active"
	case StateReceivingAudio:
		return "receiving_audio"
	case StateWaitingForProcessing:
		return "waiting_for_processing"
	case StatePlayback:
		return "playback"
	}
	return "unknown"
}

// inSession reports whether a session.abort is meaningful in s
func (s State) inSession() bool {
	return s >= StateSessionActive
}
