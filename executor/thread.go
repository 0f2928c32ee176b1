package executor

import (
	"bytes"
	"context"
	"io"
	"time"

	"go.uber.org/zap"
)

// Thread stands for one native thread of execution. It carries that
// thread's current ThreadState binding and is the unit that holds the
// execution lock.
//
// A Thread is used by a single goroutine at a time. Workers started with
// Runtime.Spawn lock their goroutine to an OS thread for its lifetime.
type Thread struct {
	rt    *Runtime
	id    uint64
	name  string
	state *ThreadState
	swaps []*BindingSwap
}

// Name returns the thread's label.
func (t *Thread) Name() string {
	return t.name
}

// State returns the thread state currently bound to t, or nil.
func (t *Thread) State() *ThreadState {
	return t.state
}

// Interpreter returns the interpreter t is bound to. It panics with
// ErrNotBound when t has no current thread state.
func (t *Thread) Interpreter() *Interpreter {
	if t.state == nil {
		usage("current interpreter", t, ErrNotBound)
	}
	return t.state.interp
}

// HoldsLock reports whether t holds the execution lock.
func (t *Thread) HoldsLock() bool {
	return t.rt.lock.heldBy(t)
}

// Run executes code in the interpreter t is bound to. t must hold the
// execution lock. A failure raised by the code is returned as a
// *ScriptError in Result.Error and leaves the interpreter usable.
func (t *Thread) Run(ctx context.Context, code string) Result {
	start := time.Now()

	t.mustHoldLock("run")
	in := t.Interpreter()
	if in.closed {
		return Result{Error: ErrInterpreterClosed, Duration: time.Since(start)}
	}

	ctx, cancel := t.rt.runContext(ctx)
	defer cancel()

	var out bytes.Buffer
	var w io.Writer = &out
	if t.rt.stdout != nil {
		w = io.MultiWriter(&out, t.rt.stdout)
	}

	err := in.instance.Exec(ctx, code, w)
	result := Result{
		Output:   out.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		result.Error = &ScriptError{Interpreter: in.name, Err: err}
		t.rt.logger.Debug("script failed",
			zap.String("thread", t.name),
			zap.String("interpreter", in.name),
			zap.Error(err))
	}
	return result
}

func (t *Thread) mustHoldLock(op string) {
	if !t.rt.lock.heldBy(t) {
		usage(op, t, ErrLockNotHeld)
	}
}

// ThreadsAllowed is an open window during which the lock is released so
// other threads can run. Close it with End.
type ThreadsAllowed struct {
	t     *Thread
	saved *ThreadState
	ended bool
}

// AllowThreads releases the execution lock held by t and unbinds t,
// remembering its thread state. End takes the lock back and rebinds:
//
//	func() {
//	    defer main.AllowThreads().End()
//	    worker.Wait()
//	}()
//
// t must hold the lock.
func (t *Thread) AllowThreads() *ThreadsAllowed {
	t.mustHoldLock("allow threads")

	a := &ThreadsAllowed{t: t, saved: t.state}
	t.state = nil
	t.rt.lock.release(t)

	t.rt.logger.Debug("execution lock released", zap.String("thread", t.name))
	return a
}

// End blocks until the lock is free, reacquires it and restores the thread
// state saved by AllowThreads.
func (a *ThreadsAllowed) End() {
	if a.ended {
		usage("end allow threads", a.t, ErrAlreadyRestored)
	}
	a.ended = true

	a.t.rt.lock.acquire(a.t)
	a.t.state = a.saved

	a.t.rt.logger.Debug("execution lock reacquired", zap.String("thread", a.t.name))
}

// BindingSnapshot remembers a thread's binding so it can be put back no
// matter what happened to it in between.
type BindingSnapshot struct {
	t     *Thread
	saved *ThreadState
}

// SaveBinding captures t's current thread state without changing it.
func (t *Thread) SaveBinding() *BindingSnapshot {
	return &BindingSnapshot{t: t, saved: t.state}
}

// Saved returns the captured thread state, possibly nil.
func (s *BindingSnapshot) Saved() *ThreadState {
	return s.saved
}

// Restore rebinds the thread to the captured state. Calling it again
// rebinds again.
func (s *BindingSnapshot) Restore() {
	s.t.state = s.saved
}

// BindingSwap is a temporary rebinding of a thread. Swaps on one thread
// nest and must be restored last-in first-out.
type BindingSwap struct {
	t        *Thread
	previous *ThreadState
	restored bool
}

// SwapBinding binds t to ts and returns a swap that puts the previous
// binding back. ts may be nil to leave t unbound for the duration; a non-nil
// ts must have been created for t. t must hold the lock.
func (t *Thread) SwapBinding(ts *ThreadState) *BindingSwap {
	t.mustHoldLock("swap thread state")
	if ts != nil && ts.thread != t {
		usage("swap thread state", t, ErrForeignState)
	}

	s := &BindingSwap{t: t, previous: t.state}
	t.state = ts
	t.swaps = append(t.swaps, s)
	return s
}

// Previous returns the binding Restore will reinstate.
func (s *BindingSwap) Previous() *ThreadState {
	return s.previous
}

// Restore reinstates the binding that was current when the swap was made.
// It panics if a swap made later on the same thread is still open.
func (s *BindingSwap) Restore() {
	t := s.t
	if s.restored {
		usage("restore thread state", t, ErrAlreadyRestored)
	}
	t.mustHoldLock("restore thread state")

	n := len(t.swaps)
	if n == 0 || t.swaps[n-1] != s {
		usage("restore thread state", t, ErrScopeOrder)
	}
	t.swaps[n-1] = nil
	t.swaps = t.swaps[:n-1]

	s.restored = true
	t.state = s.previous
}
