package taxonomy

import "sync/atomic"

// Holder publishes the current taxonomy generation. A new snapshot replaces
// the whole index; readers that already hold the previous one keep using it.
type Holder struct {
	current atomic.Pointer[Index]
}

// NewHolder returns a holder publishing idx.
func NewHolder(idx *Index) *Holder {
	h := &Holder{}
	h.current.Store(idx)
	return h
}

// Current returns the published index.
func (h *Holder) Current() *Index {
	return h.current.Load()
}

// Swap publishes idx and returns the previous generation.
func (h *Holder) Swap(idx *Index) *Index {
	return h.current.Swap(idx)
}
