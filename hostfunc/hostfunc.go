package hostfunc

import (
	"context"
	"sort"
	"sync"
	"time"
)

type Func func(ctx context.Context, args map[string]any) (any, error)

type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	return fn, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of the registered functions.
func (r *Registry) All() map[string]Func {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make(map[string]Func, len(r.funcs))
	for name, fn := range r.funcs {
		all[name] = fn
	}
	return all
}

// TimeNow returns the current Unix time in seconds.
func TimeNow(ctx context.Context, args map[string]any) (any, error) {
	return float64(time.Now().UnixNano()) / 1e9, nil
}

// NewDefaultRegistry returns a registry with time_now and, when kv is not
// nil, the kv_* functions bound to it.
func NewDefaultRegistry(kv *KVStore) *Registry {
	r := NewRegistry()
	r.Register("time_now", TimeNow)
	if kv != nil {
		kv.RegisterTo(r)
	}
	return r
}
