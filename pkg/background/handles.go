package background

import (
	"sync"

	"github.com/google/uuid"
)

type handleEntry struct {
	date        string
	data        []byte
	contentType string
	viewers     int
}

// Handles issues short-lived ids under which image bytes are served to the page.
// Every page showing the same day's image shares one handle, counted per viewer.
// A handle is dropped when its last viewer releases it, or when an image for a
// different day is shown.
type Handles struct {
	mu      sync.Mutex
	entries map[string]*handleEntry
	byDate  map[string]string
}

// NewHandles creates an empty registry.
func NewHandles() *Handles {
	return &Handles{
		entries: make(map[string]*handleEntry),
		byDate:  make(map[string]string),
	}
}

// Show registers one viewer of bg's image and returns its handle. Handles for
// other days are released. A background without image bytes returns "".
func (h *Handles) Show(bg Background) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	for date, id := range h.byDate {
		if date != bg.Date {
			delete(h.entries, id)
			delete(h.byDate, date)
		}
	}
	if len(bg.Image) == 0 {
		return ""
	}
	if id, ok := h.byDate[bg.Date]; ok {
		h.entries[id].viewers++
		return id
	}
	id := uuid.NewString()
	h.entries[id] = &handleEntry{date: bg.Date, data: bg.Image, contentType: bg.ContentType, viewers: 1}
	h.byDate[bg.Date] = id
	return id
}

// Lookup returns the bytes registered under id.
func (h *Handles) Lookup(id string) ([]byte, string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[id]
	if !ok {
		return nil, "", false
	}
	return e.data, e.contentType, true
}

// Release drops one viewer of id and frees the bytes once none remain. It reports
// whether id was registered.
func (h *Handles) Release(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[id]
	if !ok {
		return false
	}
	e.viewers--
	if e.viewers <= 0 {
		delete(h.entries, id)
		delete(h.byDate, e.date)
	}
	return true
}

// Len reports how many handles are registered.
func (h *Handles) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Close releases every handle.
func (h *Handles) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make(map[string]*handleEntry)
	h.byDate = make(map[string]string)
}
