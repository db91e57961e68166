package capture

import "fmt"

// State is the lifecycle position of a Manager.
type State int

const (
	StateIdle State = iota
	StateSessionCreated
	StateSourcesSelected
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSessionCreated:
		return "session_created"
	case StateSourcesSelected:
		return "sources_selected"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
