package delivery

import "sync/atomic"

// Registry holds the directory currently served under /stream. It is read on
// every request and swapped only by the capture supervisor.
type Registry struct {
	root atomic.Pointer[string]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Set points the server at dir.
func (r *Registry) Set(dir string) {
	if dir == "" {
		r.Clear()
		return
	}
	r.root.Store(&dir)
}

// Clear stops serving any buffer.
func (r *Registry) Clear() {
	r.root.Store(nil)
}

// Root returns the registered directory and whether one is set.
func (r *Registry) Root() (string, bool) {
	p := r.root.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}
