package router

import "sync"

// Entry is one location of a MemoryHistory.
type Entry struct {
	Path  string
	State any
}

// MemoryHistory keeps its stack in memory. It is what a server render
// navigates, since there is no browser history to drive.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []Entry
	index   int
}

func NewMemoryHistory(initial string) *MemoryHistory {
	return &MemoryHistory{entries: []Entry{{Path: initial}}}
}

// Push drops any forward entries.
func (h *MemoryHistory) Push(path string, state any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries[:h.index+1], Entry{Path: path, State: state})
	h.index++
}

func (h *MemoryHistory) Replace(path string, state any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.index] = Entry{Path: path, State: state}
}

// Go moves n entries, clamped to the stack.
func (h *MemoryHistory) Go(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.index = min(max(h.index+n, 0), len(h.entries)-1)
}

func (h *MemoryHistory) GoBack()    { h.Go(-1) }
func (h *MemoryHistory) GoForward() { h.Go(1) }

// Location is the current entry.
func (h *MemoryHistory) Location() Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.index]
}

func (h *MemoryHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
