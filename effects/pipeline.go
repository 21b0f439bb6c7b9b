package effects

import (
	"context"
	"sync"
)

// Handler processes one action.
type Handler func(ctx context.Context, action Action) error

// Interceptor wraps the next handler in the pipeline.
type Interceptor func(next Handler) Handler

// Stage is a named interceptor.
type Stage struct {
	Name string
	Wrap Interceptor
}

type installedStage struct {
	seq uint64
	Stage
}

// pipeline is an ordered list of stages around a core handler.
// The first stage added is the outermost one.
type pipeline struct {
	mu       sync.RWMutex
	core     Handler
	stages   []installedStage
	nextSeq  uint64
	composed Handler
}

func newPipeline(core Handler) *pipeline {
	return &pipeline{core: core, composed: core}
}

// add installs stage and returns the function removing it. Removing twice is
// a no-op.
func (p *pipeline) add(stage Stage) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextSeq++
	seq := p.nextSeq
	p.stages = append(p.stages, installedStage{seq: seq, Stage: stage})
	p.recompose()

	var once sync.Once
	return func() {
		once.Do(func() { p.remove(seq) })
	}
}

func (p *pipeline) remove(seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, s := range p.stages {
		if s.seq == seq {
			p.stages = append(p.stages[:i:i], p.stages[i+1:]...)
			p.recompose()
			return
		}
	}
}

// recompose must be called with mu held.
func (p *pipeline) recompose() {
	h := p.core
	for i := len(p.stages) - 1; i >= 0; i-- {
		if p.stages[i].Wrap == nil {
			continue
		}
		h = p.stages[i].Wrap(h)
	}
	p.composed = h
}

func (p *pipeline) handler() Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.composed
}

func (p *pipeline) names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}
