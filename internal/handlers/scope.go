package handlers

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// effectScope owns the workers behind one handler. Close is safe to call from
// several goroutines; only the first call tears down.
type effectScope[T any] struct {
	EffectId   string
	dispatcher WorkerDispatcher[T]
	closeFn    func()
	closeOnce  sync.Once
}

func (es *effectScope[T]) Close() {
	es.closeOnce.Do(func() {
		es.closeFn()
		zap.L().Debug("effect scope closed", zap.String("effectId", es.EffectId))
	})
}

func newEffectScope[T any](
	dispatcher WorkerDispatcher[T],
	teardown func(),
) *effectScope[T] {
	return &effectScope[T]{
		EffectId:   uuid.NewString(),
		dispatcher: dispatcher,
		closeFn:    teardown,
	}
}

// recoverClosedSend absorbs the panic raised when a message races a worker
// that has already shut down.
func recoverClosedSend(effectId string, payload any) {
	if r := recover(); r != nil {
		zap.L().Debug("dropped payload for closed effect scope",
			zap.String("effectId", effectId),
			zap.Any("payload", payload),
			zap.Any("panic", r),
		)
	}
}
