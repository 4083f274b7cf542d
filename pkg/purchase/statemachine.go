package purchase

// State represents the purchase lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// event triggers a purchase state transition.
type event string

const (
	eventStart   event = "start"
	eventSucceed event = "succeed"
	eventFail    event = "fail"
	eventReset   event = "reset"
)

// transitions is the full transition table of the purchase machine.
// success and error are transient: the only way forward is reset to idle,
// so a new purchase can never start mid-flight.
var transitions = map[State]map[event]State{
	StateIdle: {
		eventStart: StateProcessing,
	},
	StateProcessing: {
		eventSucceed: StateSuccess,
		eventFail:    StateError,
	},
	StateSuccess: {
		eventReset: StateIdle,
	},
	StateError: {
		eventReset: StateIdle,
	},
}

// next is the pure transition function: given the current state and an event
// it returns the resulting state and whether the transition is allowed.
// It has no side effects and is independently testable from I/O.
func next(current State, ev event) (State, bool) {
	to, ok := transitions[current][ev]
	if !ok {
		return current, false
	}
	return to, true
}
