package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync/atomic"
	"time"

	"github.com/caffeineduck/subinterp/hostfunc"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result holds the output and metadata from running code in an interpreter.
type Result struct {
	Output   string
	Duration time.Duration
	Error    error
}

// active guards the one-engine-per-process rule.
var active atomic.Bool

// Runtime owns the embedded engine, its main interpreter and the execution
// lock. Every field below the lock is shared engine state and is only read
// or written by the thread holding the lock.
type Runtime struct {
	id      string
	backend Backend
	logger  *zap.Logger
	stdout  io.Writer
	host    *hostfunc.Registry
	timeout time.Duration

	threadSeq atomic.Uint64
	stateSeq  atomic.Uint64

	lock *execLock

	mainThread *Thread
	main       *Interpreter
	interps    map[ID]*Interpreter
	nextID     ID
	stopped    bool
}

// Start initializes the backend and creates the main interpreter. On return
// the main thread (see MainThread) holds the execution lock and is bound to
// the main interpreter.
//
// Only one Runtime may be live per process; Start fails with ErrRuntimeActive
// until the previous one is stopped. Any error returned is a *FatalError.
func Start(backend Backend, opts ...Option) (*Runtime, error) {
	if !active.CompareAndSwap(false, true) {
		return nil, &FatalError{Op: "start", Err: ErrRuntimeActive}
	}

	cfg := defaultRuntimeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	rt := &Runtime{
		id:      uuid.NewString(),
		backend: backend,
		stdout:  cfg.stdout,
		host:    cfg.host,
		timeout: cfg.runTimeout,
		lock:    newExecLock(),
		interps: make(map[ID]*Interpreter),
	}
	rt.logger = cfg.logger.With(
		zap.String("runtime", rt.id),
		zap.String("engine", backend.Name()),
	)

	if err := backend.Init(); err != nil {
		active.Store(false)
		return nil, &FatalError{Op: "init " + backend.Name(), Err: err}
	}

	rt.mainThread = rt.NewThread(cfg.mainName)
	rt.lock.acquire(rt.mainThread)

	main, err := rt.newInterpreter(rt.mainThread, cfg.mainName, true)
	if err != nil {
		rt.lock.release(rt.mainThread)
		if ferr := backend.Finalize(); ferr != nil {
			rt.logger.Warn("finalize after failed start", zap.Error(ferr))
		}
		active.Store(false)
		return nil, err
	}
	rt.main = main

	rt.logger.Info("engine started", zap.String("main", cfg.mainName))
	return rt, nil
}

// Stop ends the main interpreter and finalizes the backend. It must be
// called exactly once, by the main thread, while that thread holds the lock
// and after every sub-interpreter has been closed; otherwise it panics with
// a *UsageError.
func (rt *Runtime) Stop() error {
	t := rt.mainThread
	if rt.stopped {
		usage("stop", t, ErrRuntimeStopped)
	}
	t.mustHoldLock("stop")

	if len(rt.interps) > 0 {
		usage("stop", t, fmt.Errorf("%w: %v", ErrInterpretersAlive, rt.interpreterNames()))
	}
	if t.state != rt.main.initial {
		usage("stop", t, ErrNotCurrent)
	}

	err := rt.main.end(t)
	rt.stopped = true
	rt.lock.release(t)

	if ferr := rt.backend.Finalize(); ferr != nil {
		err = errors.Join(err, fmt.Errorf("finalize %s: %w", rt.backend.Name(), ferr))
	}
	active.Store(false)

	rt.logger.Info("engine stopped")
	return err
}

// With starts a runtime, hands its main thread to fn, and stops the runtime
// once fn returns. fn must leave every interpreter it created closed.
//
// If fn panics the runtime is abandoned: the backend is finalized without
// closing interpreters, so a later Start can succeed, and the panic is
// re-raised.
func With(backend Backend, fn func(rt *Runtime, main *Thread) error, opts ...Option) (err error) {
	rt, err := Start(backend, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			rt.abandon(r)
			panic(r)
		}
	}()

	err = fn(rt, rt.mainThread)
	if serr := rt.Stop(); serr != nil {
		err = errors.Join(err, serr)
	}
	return err
}

// abandon tears down a runtime whose owner panicked. Interpreters may be in
// any state, so only the lock, the backend and the process flag are reset.
func (rt *Runtime) abandon(cause any) {
	if rt.stopped {
		return
	}
	rt.stopped = true
	if rt.lock.heldBy(rt.mainThread) {
		rt.mainThread.state = nil
		rt.lock.release(rt.mainThread)
	}
	if ferr := rt.backend.Finalize(); ferr != nil {
		rt.logger.Warn("finalize after panic", zap.Error(ferr))
	}
	active.Store(false)

	rt.logger.Error("engine abandoned", zap.Any("panic", cause))
}

// ID is a unique identifier for this runtime, used to correlate log lines.
func (rt *Runtime) ID() string {
	return rt.id
}

// MainThread returns the thread that called Start.
func (rt *Runtime) MainThread() *Thread {
	return rt.mainThread
}

// Main returns the main interpreter.
func (rt *Runtime) Main() *Interpreter {
	return rt.main
}

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() *zap.Logger {
	return rt.logger
}

// Stdout returns the writer script output is echoed to, or nil.
func (rt *Runtime) Stdout() io.Writer {
	return rt.stdout
}

// Interpreters lists the main interpreter followed by live sub-interpreters
// in creation order. t must hold the execution lock.
func (rt *Runtime) Interpreters(t *Thread) []*Interpreter {
	t.mustHoldLock("list interpreters")

	list := make([]*Interpreter, 0, len(rt.interps)+1)
	list = append(list, rt.main)
	for _, in := range rt.interps {
		list = append(list, in)
	}
	sort.Slice(list[1:], func(i, j int) bool {
		return list[1+i].id < list[1+j].id
	})
	return list
}

// NewThread returns a thread handle. Each goroutine that runs code needs
// its own; a Thread must not be used from two goroutines at once.
func (rt *Runtime) NewThread(name string) *Thread {
	id := rt.threadSeq.Add(1)
	if name == "" {
		name = fmt.Sprintf("thread-%d", id)
	}
	return &Thread{rt: rt, id: id, name: name}
}

func (rt *Runtime) interpreterNames() []string {
	names := make([]string, 0, len(rt.interps))
	for _, in := range rt.interps {
		names = append(names, in.name)
	}
	sort.Strings(names)
	return names
}

func (rt *Runtime) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if rt.timeout > 0 {
		return context.WithTimeout(ctx, rt.timeout)
	}
	return ctx, func() {}
}
