package executor

import "go.uber.org/zap"

// ThreadState is one thread's right to run code inside one interpreter.
// Its interpreter never changes.
type ThreadState struct {
	id      uint64
	interp  *Interpreter
	thread  *Thread
	cleared bool
}

// NewThreadState creates a thread state for t in the interpreter, then
// blocks until the execution lock is free, takes it, and binds t to the new
// state. t must not already hold the lock.
//
// Close releases both. Composed with a swap, use Interpreter.Enter.
func (in *Interpreter) NewThreadState(t *Thread) *ThreadState {
	if t.rt != in.rt {
		usage("new thread state", t, ErrForeignRuntime)
	}
	if t.HoldsLock() {
		usage("new thread state", t, ErrLockHeld)
	}

	ts := newThreadState(in, t)

	in.rt.lock.acquire(t)
	if in.closed {
		in.rt.lock.release(t)
		usage("new thread state", t, ErrInterpreterClosed)
	}
	in.states[ts] = struct{}{}
	t.state = ts

	in.rt.logger.Debug("thread state acquired",
		zap.String("thread", t.name),
		zap.String("interpreter", in.name))
	return ts
}

func newThreadState(in *Interpreter, t *Thread) *ThreadState {
	return &ThreadState{
		id:     in.rt.stateSeq.Add(1),
		interp: in,
		thread: t,
	}
}

// ID returns the state's identifier, unique within the runtime.
func (ts *ThreadState) ID() uint64 {
	return ts.id
}

// Interpreter returns the interpreter the state runs in.
func (ts *ThreadState) Interpreter() *Interpreter {
	return ts.interp
}

// Thread returns the thread the state was created for.
func (ts *ThreadState) Thread() *Thread {
	return ts.thread
}

// Close clears the state and deletes it as its thread's current binding,
// which hands the execution lock back. The state must be current.
func (ts *ThreadState) Close() {
	t := ts.thread
	if ts.cleared {
		usage("delete thread state", t, ErrAlreadyRestored)
	}
	t.mustHoldLock("delete thread state")
	if t.state != ts {
		usage("delete thread state", t, ErrNotCurrent)
	}

	ts.clear()
	t.state = nil
	t.rt.lock.release(t)

	t.rt.logger.Debug("thread state released",
		zap.String("thread", t.name),
		zap.String("interpreter", ts.interp.name))
}

func (ts *ThreadState) clear() {
	delete(ts.interp.states, ts)
	ts.cleared = true
}
