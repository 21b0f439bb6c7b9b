// Package router exposes imperative navigation as dispatchable actions.
//
// The module stores one History handle, set once with SetHistory. Navigation
// actions are applied to that handle by an effect which completes with a Noop.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/on-the-ground/effect_ive_ssr/effects"
	"github.com/on-the-ground/effect_ive_ssr/effects/log"
	sharedHelper "github.com/on-the-ground/effect_ive_ssr/shared/helper"
)

const ModuleName = "@@Router"

const (
	SetHistoryActionType  = "setHistory"
	CallHistoryActionType = "callHistory"
)

var (
	ErrNoHistory     = errors.New("router has no history")
	ErrUnknownMethod = errors.New("unknown history method")
)

// History is the navigation handle the router drives.
type History interface {
	Push(path string, state any)
	Replace(path string, state any)
	Go(n int)
	GoBack()
	GoForward()
}

type State struct {
	History History `json:"-"`
}

type Method string

const (
	MethodPush      Method = "push"
	MethodReplace   Method = "replace"
	MethodGo        Method = "go"
	MethodGoBack    Method = "goBack"
	MethodGoForward Method = "goForward"
)

// CallHistory is the payload of a navigation action.
type CallHistory struct {
	Method Method
	Path   string
	State  any
	N      int
}

// NewModule declares the router module.
func NewModule() *effects.Module[State] {
	return effects.NewModule(ModuleName, State{}).
		Reducer(SetHistoryActionType, setHistory).
		Effect(CallHistoryActionType, callHistory)
}

func setHistory(state State, payload any) State {
	h, ok := sharedHelper.GetTypedValueOf2[History](func() (any, bool) {
		return payload, payload != nil
	})
	if !ok {
		log.LogEff(context.Background(), log.LogWarn, "ignored history of unexpected type", map[string]interface{}{
			"type": fmt.Sprintf("%T", payload),
		})
		return state
	}
	if state.History != nil {
		log.LogEff(context.Background(), log.LogWarn, "router history is already set, replacing it", nil)
	}
	return State{History: h}
}

func callHistory(ctx context.Context, ec effects.EffectContext[State], payload any) error {
	call, err := sharedHelper.GetTypedValueOf[CallHistory](func() (any, error) {
		return payload, nil
	})
	if err != nil {
		return err
	}

	h := ec.State().History
	if h == nil {
		return ErrNoHistory
	}

	switch call.Method {
	case MethodPush:
		h.Push(call.Path, call.State)
	case MethodReplace:
		h.Replace(call.Path, call.State)
	case MethodGo:
		h.Go(call.N)
	case MethodGoBack:
		h.GoBack()
	case MethodGoForward:
		h.GoForward()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, call.Method)
	}

	ec.Emit(effects.Noop())
	return nil
}

func SetHistory(h History) effects.Action {
	return effects.Action{Type: SetHistoryActionType, Payload: h}
}

func Push(path string, state any) effects.Action {
	return call(CallHistory{Method: MethodPush, Path: path, State: state})
}

func Replace(path string, state any) effects.Action {
	return call(CallHistory{Method: MethodReplace, Path: path, State: state})
}

func Go(n int) effects.Action {
	return call(CallHistory{Method: MethodGo, N: n})
}

func GoBack() effects.Action {
	return call(CallHistory{Method: MethodGoBack})
}

func GoForward() effects.Action {
	return call(CallHistory{Method: MethodGoForward})
}

func call(c CallHistory) effects.Action {
	return effects.Action{Type: CallHistoryActionType, Payload: c}
}
