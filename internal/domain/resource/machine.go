package resource

import (
	"fmt"
	"sync"

	"github.com/felixgeelhaar/statekit"
	"github.com/felixgeelhaar/statekit/export"
)

// OwnershipContext is the context passed to the ownership state machine.
type OwnershipContext struct{}

// Event names for the ownership state machine.
const (
	EventReserve   statekit.EventType = "RESERVE"
	EventUnreserve statekit.EventType = "UNRESERVE"
	EventLock      statekit.EventType = "LOCK"
	EventUnlock    statekit.EventType = "UNLOCK"
	EventReset     statekit.EventType = "RESET"
)

// State IDs for the ownership state machine.
var (
	StateIDFree              = statekit.StateID(StateFree)
	StateIDReserved          = statekit.StateID(StateReserved)
	StateIDLocked            = statekit.StateID(StateLocked)
	StateIDReservedAndLocked = statekit.StateID(StateReservedAndLocked)
)

var (
	buildOnce      sync.Once
	newInterpreter func() *statekit.Interpreter[OwnershipContext]
	exporter       *export.XStateExporter[OwnershipContext]
	definition     *export.XStateMachine
	buildErr       error
)

func buildOwnershipMachine() {
	machine, err := statekit.NewMachine[OwnershipContext]("resource-ownership").
		WithInitial(StateIDFree).
		// Free state
		State(StateIDFree).
		On(EventReserve).Target(StateIDReserved).
		On(EventLock).Target(StateIDLocked).
		On(EventReset).Target(StateIDFree).
		Done().
		// Reserved by a holder, no running build
		State(StateIDReserved).
		On(EventReserve).Target(StateIDReserved). // Overwrites holder
		On(EventUnreserve).Target(StateIDFree).
		On(EventLock).Target(StateIDReservedAndLocked).
		On(EventReset).Target(StateIDFree).
		Done().
		// Locked by a running build
		State(StateIDLocked).
		On(EventReserve).Target(StateIDReservedAndLocked).
		On(EventLock).Target(StateIDLocked). // Replaces build
		On(EventUnlock).Target(StateIDFree).
		On(EventReset).Target(StateIDFree).
		Done().
		// Locked by a build and reserved by a holder at the same time
		State(StateIDReservedAndLocked).
		On(EventReserve).Target(StateIDReservedAndLocked).
		On(EventUnreserve).Target(StateIDLocked).
		On(EventLock).Target(StateIDReservedAndLocked).
		On(EventUnlock).Target(StateIDReserved).
		On(EventReset).Target(StateIDFree).
		Done().
		Build()
	if err != nil {
		buildErr = fmt.Errorf("failed to build ownership state machine: %w", err)
		return
	}
	exporter = export.NewXStateExporter(machine)
	definition, err = exporter.Export()
	if err != nil {
		buildErr = fmt.Errorf("failed to export ownership state machine: %w", err)
		return
	}
	newInterpreter = func() *statekit.Interpreter[OwnershipContext] {
		return statekit.NewInterpreter(machine)
	}
}

// OwnershipMachine wraps the Statekit interpreter tracking one resource's
// ownership state.
type OwnershipMachine struct {
	interpreter *statekit.Interpreter[OwnershipContext]
}

// NewOwnershipMachine creates a machine that has not been started.
func NewOwnershipMachine() *OwnershipMachine {
	buildOnce.Do(buildOwnershipMachine)
	if buildErr != nil {
		return &OwnershipMachine{}
	}
	return &OwnershipMachine{interpreter: newInterpreter()}
}

// Start starts the interpreter in the free state.
func (m *OwnershipMachine) Start() {
	if m.interpreter != nil {
		m.interpreter.Start()
	}
}

// Send sends an event to the interpreter. Events the current state does not
// define leave the state unchanged.
func (m *OwnershipMachine) Send(event statekit.EventType) {
	if m == nil || m.interpreter == nil {
		return
	}
	m.interpreter.Send(statekit.Event{Type: event})
}

// CurrentState returns the current state, or "" if the machine is unavailable.
func (m *OwnershipMachine) CurrentState() statekit.StateID {
	if m == nil || m.interpreter == nil {
		return ""
	}
	return m.interpreter.State().Value
}

// Sync restarts the interpreter and replays the events that lead to state.
// It is used when fields are restored directly instead of through transitions.
func (m *OwnershipMachine) Sync(state OwnershipState) {
	if m == nil || m.interpreter == nil {
		return
	}
	m.interpreter = newInterpreter()
	m.interpreter.Start()
	switch state {
	case StateReserved:
		m.Send(EventReserve)
	case StateLocked:
		m.Send(EventLock)
	case StateReservedAndLocked:
		m.Send(EventReserve)
		m.Send(EventLock)
	}
}

// NextState returns the state reached from "from" by "event" according to
// the machine definition. Events the state does not define return
// ErrInvalidTransition.
func NextState(from OwnershipState, event statekit.EventType) (OwnershipState, error) {
	buildOnce.Do(buildOwnershipMachine)
	if buildErr != nil {
		return from, buildErr
	}
	t, ok := definition.States[string(from)].On[string(event)]
	if !ok {
		return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, from)
	}
	return OwnershipState(t.Target), nil
}

// ExportXStateJSON exports the ownership machine as XState-compatible JSON.
func ExportXStateJSON() ([]byte, error) {
	buildOnce.Do(buildOwnershipMachine)
	if buildErr != nil {
		return nil, buildErr
	}
	data, err := exporter.ExportJSONIndent("", "  ")
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}
