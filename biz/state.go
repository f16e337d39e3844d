package biz

// State of a Replayer, one per connection.
//
//	Idle -> Connected -> {WaitingForData | Sending} -> Sending -> Done
//
// Closed and Errored are reachable from any state and end all sends.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateWaitingForData
	StateSending
	StateDone
	StateClosed
	StateErrored
)

var stateNames = map[State]string{
	StateIdle:           "IDLE",
	StateConnected:      "CONNECTED",
	StateWaitingForData: "WAITING_FOR_DATA",
	StateSending:        "SENDING",
	StateDone:           "DONE",
	StateClosed:         "CLOSED",
	StateErrored:        "ERRORED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether no further frame may be sent.
func (s State) Terminal() bool {
	return s == StateDone || s == StateClosed || s == StateErrored
}
