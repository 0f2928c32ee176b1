package executor

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ID identifies an interpreter within a runtime. The main interpreter is 0.
type ID uint64

// Interpreter is an isolated global namespace inside the runtime's engine.
// Code running in one interpreter cannot see another's globals.
type Interpreter struct {
	rt       *Runtime
	id       ID
	name     string
	main     bool
	instance Instance

	// initial is the thread state created together with the interpreter,
	// owned by the thread that created it.
	initial *ThreadState
	states  map[*ThreadState]struct{}
	closed  bool
}

// NewInterpreter creates a sub-interpreter. t must hold the execution lock
// and be bound; its binding is the same on return as on entry. A failure to
// create the backend instance is returned as a *FatalError.
func (rt *Runtime) NewInterpreter(t *Thread, name string) (*Interpreter, error) {
	if t.rt != rt {
		usage("new interpreter", t, ErrForeignRuntime)
	}
	t.mustHoldLock("new interpreter")
	if t.state == nil {
		usage("new interpreter", t, ErrNotBound)
	}
	if rt.stopped {
		usage("new interpreter", t, ErrRuntimeStopped)
	}

	snap := t.SaveBinding()
	defer snap.Restore()

	return rt.newInterpreter(t, name, false)
}

// newInterpreter leaves t bound to the new interpreter's initial state.
func (rt *Runtime) newInterpreter(t *Thread, name string, main bool) (*Interpreter, error) {
	id := rt.nextID
	if name == "" {
		name = fmt.Sprintf("sub-%d", id)
	}

	inst, err := rt.backend.NewInstance(InstanceConfig{
		ID:   id,
		Name: name,
		Main: main,
		Host: rt.host,
	})
	if err != nil {
		return nil, &FatalError{Op: "new interpreter " + name, Err: err}
	}
	rt.nextID++

	in := &Interpreter{
		rt:       rt,
		id:       id,
		name:     name,
		main:     main,
		instance: inst,
		states:   make(map[*ThreadState]struct{}),
	}
	in.initial = newThreadState(in, t)
	in.states[in.initial] = struct{}{}
	t.state = in.initial

	if !main {
		rt.interps[id] = in
	}

	rt.logger.Debug("interpreter created",
		zap.String("thread", t.name),
		zap.String("interpreter", name),
		zap.Uint64("id", uint64(id)))
	return in, nil
}

// ID returns the interpreter's identifier.
func (in *Interpreter) ID() ID {
	return in.id
}

// Name returns the interpreter's name.
func (in *Interpreter) Name() string {
	return in.name
}

// IsMain reports whether this is the runtime's main interpreter.
func (in *Interpreter) IsMain() bool {
	return in.main
}

// State returns the thread state created along with the interpreter. It
// belongs to the thread that created the interpreter, which may swap to it
// to run code here without blocking on the lock.
func (in *Interpreter) State() *ThreadState {
	return in.initial
}

// Closed reports whether the interpreter has been ended. t must hold the
// lock.
func (in *Interpreter) Closed(t *Thread) bool {
	t.mustHoldLock("inspect interpreter")
	return in.closed
}

// Close ends a sub-interpreter. t must hold the execution lock and must not
// be bound to this interpreter; no other thread may still have a state in
// it. t's binding is the same on return as on entry. Closing twice is a
// no-op.
func (in *Interpreter) Close(t *Thread) error {
	if in.main {
		usage("end interpreter", t, ErrMainInterpreter)
	}
	t.mustHoldLock("end interpreter")
	if in.closed {
		return nil
	}
	if t.state != nil && t.state.interp == in {
		usage("end interpreter", t, ErrInterpreterBound)
	}
	if in.initial.thread != t {
		usage("end interpreter", t, ErrForeignState)
	}

	swap := t.SwapBinding(in.initial)
	defer swap.Restore()

	return in.end(t)
}

// end tears the interpreter down while t is bound to its initial state and
// leaves t unbound.
func (in *Interpreter) end(t *Thread) error {
	for ts := range in.states {
		if ts != in.initial {
			usage("end interpreter "+in.name, t, ErrInterpreterBusy)
		}
	}

	in.initial.clear()
	t.state = nil
	in.closed = true
	delete(in.rt.interps, in.id)

	in.rt.logger.Debug("interpreter ended",
		zap.String("thread", t.name),
		zap.String("interpreter", in.name))

	if err := in.instance.Close(); err != nil {
		return fmt.Errorf("close interpreter %s: %w", in.name, err)
	}
	return nil
}

// CloseAll closes interps in reverse order and joins their errors. It is
// meant to be deferred right after the interpreters are created.
func CloseAll(t *Thread, interps ...*Interpreter) error {
	var errs []error
	for i := len(interps) - 1; i >= 0; i-- {
		if err := interps[i].Close(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ThreadScope is a thread state plus a swap onto it: the full setup a new
// thread needs to run code in an interpreter.
type ThreadScope struct {
	state *ThreadState
	swap  *BindingSwap
}

// Enter creates a thread state for t in the interpreter (blocking for the
// lock) and swaps t onto it. Close unwinds both in reverse order:
//
//	scope := in.Enter(t)
//	defer scope.Close()
func (in *Interpreter) Enter(t *Thread) *ThreadScope {
	st := in.NewThreadState(t)
	return &ThreadScope{
		state: st,
		swap:  t.SwapBinding(st),
	}
}

// State returns the scope's thread state.
func (s *ThreadScope) State() *ThreadState {
	return s.state
}

// Close restores the swap, then deletes the thread state and with it
// releases the lock.
func (s *ThreadScope) Close() {
	s.swap.Restore()
	s.state.Close()
}
