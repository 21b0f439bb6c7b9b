package effectmodel

import "errors"

type EffectEnum string

const (
	EffectLog EffectEnum = "effect_ive_ssr_effect_enum_log"
	EffectSSR EffectEnum = "effect_ive_ssr_effect_enum_ssr"
)

var ErrNoEffectHandler = errors.New("no effect handler registered for this effect")

// EffectScopeConfig sizes the worker pool behind an effect handler.
type EffectScopeConfig struct {
	BufferSize int // default: 1
	NumWorkers int // default: 1
}

func NewEffectScopeConfig(bufferSize int, numWorkers int) EffectScopeConfig {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return EffectScopeConfig{
		BufferSize: bufferSize,
		NumWorkers: numWorkers,
	}
}

// Partitionable routes a payload to a worker. Payloads sharing a key are
// handled by the same worker, in order.
type Partitionable interface {
	PartitionKey() string
}
