package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// mockBackend implements Backend for testing lock and binding logic without
// a real scripting engine. Each instance understands a few line commands:
//
//	set NAME VALUE   bind a global
//	get NAME         print a global, failing if undefined
//	fail MESSAGE     return an error
//	busy DURATION    hold the engine for a while, tracking overlap
//	panic            panic inside the engine
type mockBackend struct {
	initErr     error
	instanceErr error
	finalizeErr error
	closeErr    error

	inits     atomic.Int32
	finalizes atomic.Int32

	mu        sync.Mutex
	instances map[ID]*mockInstance

	inside     atomic.Int32
	maxInside  atomic.Int32
	busyRounds atomic.Int32
}

func newMockBackend() *mockBackend {
	return &mockBackend{instances: make(map[ID]*mockInstance)}
}

func (b *mockBackend) Name() string { return "mock" }

func (b *mockBackend) Init() error {
	b.inits.Add(1)
	return b.initErr
}

func (b *mockBackend) Finalize() error {
	b.finalizes.Add(1)
	return b.finalizeErr
}

func (b *mockBackend) NewInstance(cfg InstanceConfig) (Instance, error) {
	if b.instanceErr != nil && !cfg.Main {
		return nil, b.instanceErr
	}
	inst := &mockInstance{
		backend: b,
		cfg:     cfg,
		globals: map[string]string{"name": cfg.Name},
	}
	b.mu.Lock()
	b.instances[cfg.ID] = inst
	b.mu.Unlock()
	return inst, nil
}

func (b *mockBackend) instance(id ID) *mockInstance {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.instances[id]
}

type mockInstance struct {
	backend *mockBackend
	cfg     InstanceConfig
	globals map[string]string
	closed  bool
}

func (m *mockInstance) Exec(ctx context.Context, code string, stdout io.Writer) error {
	if m.closed {
		return errors.New("instance closed")
	}
	for _, line := range strings.Split(code, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "set":
			m.globals[fields[1]] = strings.Join(fields[2:], " ")
		case "get":
			v, ok := m.globals[fields[1]]
			if !ok {
				return fmt.Errorf("undefined global '%s'", fields[1])
			}
			fmt.Fprintln(stdout, v)
		case "fail":
			return errors.New(strings.Join(fields[1:], " "))
		case "busy":
			d, _ := time.ParseDuration(fields[1])
			if err := m.busy(ctx, d); err != nil {
				return err
			}
		case "panic":
			panic("mock engine panic")
		default:
			return fmt.Errorf("unknown command %q", fields[0])
		}
	}
	return nil
}

func (m *mockInstance) busy(ctx context.Context, d time.Duration) error {
	b := m.backend
	n := b.inside.Add(1)
	defer b.inside.Add(-1)
	for {
		peak := b.maxInside.Load()
		if n <= peak || b.maxInside.CompareAndSwap(peak, n) {
			break
		}
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
		return ctx.Err()
	}
	b.busyRounds.Add(1)
	return nil
}

func (m *mockInstance) Close() error {
	m.closed = true
	return m.backend.closeErr
}
