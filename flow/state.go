package flow

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// NodeState is the lifecycle state of a node or mapped instance.
type NodeState string

const (
	StatePending   NodeState = "pending"
	StateRunning   NodeState = "running"
	StateSucceeded NodeState = "succeeded"
	StateFailed    NodeState = "failed"
	StateSkipped   NodeState = "skipped"
)

// IsTerminal returns true for succeeded, failed and skipped.
func (s NodeState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateSkipped
}

const (
	eventStart   = "start"
	eventSucceed = "succeed"
	eventFail    = "fail"
	eventSkip    = "skip"
)

// newStateMachine returns a machine allowing pending -> running -> succeeded|failed and pending -> skipped.
func newStateMachine() *fsm.FSM {
	return fsm.NewFSM(
		string(StatePending),
		fsm.Events{
			{Name: eventStart, Src: []string{string(StatePending)}, Dst: string(StateRunning)},
			{Name: eventSucceed, Src: []string{string(StateRunning)}, Dst: string(StateSucceeded)},
			{Name: eventFail, Src: []string{string(StateRunning)}, Dst: string(StateFailed)},
			{Name: eventSkip, Src: []string{string(StatePending)}, Dst: string(StateSkipped)},
		},
		fsm.Callbacks{},
	)
}

// transition fires event on m. An illegal transition is a bug in the executor, so it panics.
// The machine always gets a live context: a cancelled one would leave the state unchanged.
func transition(m *fsm.FSM, event string) NodeState {
	if err := m.Event(context.Background(), event); err != nil {
		panic(fmt.Sprintf("illegal node transition %q from state %q: %v", event, m.Current(), err))
	}
	return NodeState(m.Current())
}
