package ssr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rickb777/date/v2/timespan"
)

// ModuleReport describes how a module's state was captured.
type ModuleReport struct {
	// Complete is false when the run ended before every SSR effect of the
	// module terminated or was skipped.
	Complete bool

	// Span runs from the start of the run until the module settled, or until
	// its state was captured if it never did.
	Span timespan.TimeSpan
}

// Result is the finalized snapshot of a run. It never changes once built.
type Result struct {
	states  map[string]any
	retries map[string][]string
	reports map[string]ModuleReport
}

func emptyResult() *Result {
	return &Result{
		states:  map[string]any{},
		retries: map[string][]string{},
		reports: map[string]ModuleReport{},
	}
}

// State is the captured state of module m.
func (r *Result) State(m string) (any, bool) {
	s, ok := r.states[m]
	return s, ok
}

func (r *Result) States() map[string]any {
	return maps.Clone(r.states)
}

// Retries lists the actions module m asked the client to redo, in signal order.
func (r *Result) Retries(m string) []string {
	return slices.Clone(r.retries[m])
}

func (r *Result) RetryMap() map[string][]string {
	out := make(map[string][]string, len(r.retries))
	for m, names := range r.retries {
		out[m] = slices.Clone(names)
	}
	return out
}

func (r *Result) Report(m string) (ModuleReport, bool) {
	rep, ok := r.reports[m]
	return rep, ok
}

// Incomplete lists the captured modules that never settled, sorted.
func (r *Result) Incomplete() []string {
	var out []string
	for m, rep := range r.reports {
		if !rep.Complete {
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return out
}

type snapshot struct {
	State map[string]any      `json:"state"`
	Retry map[string][]string `json:"retry"`
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshot{State: r.states, Retry: r.retries})
}

// WriteScript writes the hydration script exposing the snapshot to the client.
// JSON is HTML-escaped so state cannot close the script element.
func (r *Result) WriteScript(w io.Writer) error {
	state, err := htmlSafeJSON(r.states)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	retry, err := htmlSafeJSON(r.retries)
	if err != nil {
		return fmt.Errorf("failed to encode retry map: %w", err)
	}
	_, err = fmt.Fprintf(w, "<script>window.__EFFECT_STATE__=%s;window.__EFFECT_RETRY__=%s;</script>", state, retry)
	return err
}

func htmlSafeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// collector builds a Result while a run is in flight.
// Captures after finalize are ignored.
type collector struct {
	started time.Time

	mu        sync.Mutex
	finalized bool
	states    map[string]any
	retries   map[string][]string
	reports   map[string]ModuleReport
}

func newCollector(started time.Time) *collector {
	return &collector{
		started: started,
		states:  map[string]any{},
		retries: map[string][]string{},
		reports: map[string]ModuleReport{},
	}
}

func (c *collector) retry(module, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return
	}
	c.retries[module] = append(c.retries[module], name)
}

// capture records the state of module once; later captures are ignored.
func (c *collector) capture(module string, state any, complete bool, until time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return false
	}
	if _, ok := c.states[module]; ok {
		return false
	}
	c.states[module] = state
	c.reports[module] = ModuleReport{
		Complete: complete,
		Span:     timespan.BetweenTimes(c.started, until),
	}
	return true
}

func (c *collector) finalize() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalized = true

	r := emptyResult()
	maps.Copy(r.states, c.states)
	maps.Copy(r.reports, c.reports)
	for m, names := range c.retries {
		r.retries[m] = slices.Clone(names)
	}
	return r
}
