package effects

import (
	"errors"
	"fmt"
)

// Reserved action types. Module reducers never see Terminate or Retry with a
// module-declared meaning.
const (
	TerminateActionType = "@@effects/terminate"
	RetryActionType     = "@@effects/retry"
	NoopActionType      = "@@effects/noop"
	FailureActionType   = "@@effects/failure"
)

// ErrSkip is returned by a PayloadProducer that declines to fire its action.
var ErrSkip = errors.New("skip ssr action")

// Action is the unit a Store processes.
//
// Origin tags actions dispatched by an SSR run. The store carries it over to
// the Terminate action emitted once the triggered effect finishes.
//
// Run tags actions caused indirectly by a run: those emitted by an effect, its
// retry signals and its failures. They never count towards termination.
type Action struct {
	Type    string
	Payload any
	Origin  string
	Run     string
}

// Owner is the run the action belongs to, or "" for actions dispatched
// outside any run.
func (a Action) Owner() string {
	if a.Origin != "" {
		return a.Origin
	}
	return a.Run
}

func (a Action) String() string {
	switch {
	case a.Origin != "":
		return fmt.Sprintf("%s (origin %s)", a.Type, a.Origin)
	case a.Run != "":
		return fmt.Sprintf("%s (run %s)", a.Type, a.Run)
	}
	return a.Type
}

// Termination is the payload of a Terminate action.
// Cause is the type of the action whose effect finished.
type Termination struct {
	Cause string
	Err   error
}

// Failure is the payload of a Failure action: the effect triggered by an
// action of type Cause returned Err.
type Failure struct {
	Cause string
	Err   error
}

// Retry is the payload of a Retry action.
type Retry struct {
	Module string
	Name   string
}

// Terminate builds the Terminate action for cause.
func Terminate(origin, cause string, err error) Action {
	return Action{
		Type:    TerminateActionType,
		Payload: Termination{Cause: cause, Err: err},
		Origin:  origin,
	}
}

// RetryAction builds the Retry action asking the client to redo name.
func RetryAction(module, name string) Action {
	return Action{
		Type:    RetryActionType,
		Payload: Retry{Module: module, Name: name},
	}
}

// Fail builds the Failure action reporting err for cause.
func Fail(run, cause string, err error) Action {
	return Action{
		Type:    FailureActionType,
		Payload: Failure{Cause: cause, Err: err},
		Run:     run,
	}
}

// Noop is an action no module handles.
func Noop() Action {
	return Action{Type: NoopActionType}
}

// IsTerminate reports whether a is a Terminate action.
func IsTerminate(a Action) bool { return a.Type == TerminateActionType }

// IsFailure reports whether a is a Failure action.
func IsFailure(a Action) bool { return a.Type == FailureActionType }

// IsRetry reports whether a is a Retry action.
func IsRetry(a Action) bool { return a.Type == RetryActionType }
