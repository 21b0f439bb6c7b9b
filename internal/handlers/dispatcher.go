package handlers

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"

	effectmodel "github.com/on-the-ground/effect_ive_ssr/internal/model"
)

// WorkerDispatcher picks the worker channel a message is sent to.
type WorkerDispatcher[T any] interface {
	GetChannelOf(msg T) chan T
}

// --- single queue ---

type singleQueue[T any] struct {
	effectCh chan T
}

func (q singleQueue[T]) GetChannelOf(_ T) chan T {
	return q.effectCh
}

// NewSingleQueue starts one worker. Messages are handled strictly in the order
// they were sent. The worker exits and closes its channel when ctx is done.
func NewSingleQueue[T any](
	ctx context.Context,
	bufferSize int,
	handleFn func(context.Context, T),
) WorkerDispatcher[T] {
	effCh := make(chan T, bufferSize)
	ready := make(chan struct{})

	go func(ch chan T) {
		defer close(ch)
		close(ready)
		runWorker(ctx, ch, handleFn)
	}(effCh)

	<-ready

	return singleQueue[T]{effectCh: effCh}
}

// --- partitioned queue ---

type partitionedQueue[T effectmodel.Partitionable] struct {
	effectChs []chan T
}

func (pq partitionedQueue[T]) GetChannelOf(msg T) chan T {
	return pq.effectChs[indexOf(msg, len(pq.effectChs))]
}

// NewPartitionedQueue starts numWorkers workers and routes each message by the
// xxhash of its partition key.
func NewPartitionedQueue[T effectmodel.Partitionable](
	ctx context.Context,
	numWorkers, bufferSize int,
	handleFn func(context.Context, T),
) WorkerDispatcher[T] {
	channels := make([]chan T, numWorkers)
	ready := sync.WaitGroup{}
	for i := 0; i < numWorkers; i++ {
		ready.Add(1)
		ch := make(chan T, bufferSize)
		go func(ch chan T) {
			defer close(ch)
			ready.Done()
			runWorker(ctx, ch, handleFn)
		}(ch)
		channels[i] = ch
	}
	ready.Wait()
	return partitionedQueue[T]{effectChs: channels}
}

func runWorker[T any](ctx context.Context, ch chan T, handleFn func(context.Context, T)) {
	for {
		select {
		case msg := <-ch:
			handleFn(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// Shard maps a key onto [0, n) with xxhash.
func Shard(key string, n int) int {
	switch n {
	case 0:
		panic("number of shards cannot be 0")
	case 1:
		return 0
	default:
		return int(xxhash.Sum64String(key) % uint64(n))
	}
}

func indexOf(payload effectmodel.Partitionable, numChs int) int {
	return Shard(payload.PartitionKey(), numChs)
}
