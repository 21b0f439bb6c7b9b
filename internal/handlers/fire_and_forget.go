package handlers

import (
	"context"
)

// NewFireAndForgetHandler starts a single worker that runs handleFn for every
// payload, in arrival order. Closing the handler cancels the worker before the
// teardown runs.
func NewFireAndForgetHandler[P any](
	ctx context.Context,
	bufferSize int,
	handleFn func(context.Context, P),
	teardown func(),
) FireAndForgetHandler[P] {
	ctx, cancelFn := context.WithCancel(ctx)
	return FireAndForgetHandler[P]{
		effectScope: newEffectScope(
			NewSingleQueue(ctx, bufferSize, handleFn),
			func() {
				cancelFn()
				teardown()
			},
		),
		done: ctx.Done(),
	}
}

type FireAndForgetHandler[P any] struct {
	*effectScope[P]
	done <-chan struct{}
}

// FireAndForgetEffect enqueues payload. It gives up when either ctx or the
// handler itself is done.
func (ffh FireAndForgetHandler[P]) FireAndForgetEffect(ctx context.Context, payload P) {
	defer recoverClosedSend(ffh.EffectId, payload)

	select {
	case <-ffh.done:
		return
	default:
	}

	select {
	case <-ctx.Done():
	case <-ffh.done:
	case ffh.dispatcher.GetChannelOf(payload) <- payload:
	}
}
