package executor

import (
	"errors"
	"fmt"
)

var (
	ErrRuntimeActive     = errors.New("runtime already active in this process")
	ErrRuntimeStopped    = errors.New("runtime stopped")
	ErrNotBound          = errors.New("thread has no current thread state")
	ErrLockNotHeld       = errors.New("execution lock not held by thread")
	ErrLockHeld          = errors.New("execution lock already held by thread")
	ErrNotCurrent        = errors.New("thread state is not current for its thread")
	ErrForeignState      = errors.New("thread state belongs to another thread")
	ErrForeignRuntime    = errors.New("object belongs to another runtime")
	ErrInterpreterBusy   = errors.New("interpreter has live thread states")
	ErrInterpreterBound  = errors.New("thread is bound to the interpreter being ended")
	ErrInterpretersAlive = errors.New("sub-interpreters still alive")
	ErrInterpreterClosed = errors.New("interpreter closed")
	ErrMainInterpreter   = errors.New("main interpreter is ended by Runtime.Stop")
	ErrAlreadyRestored   = errors.New("scope already restored")
	ErrScopeOrder        = errors.New("scope restored out of order")
)

// FatalError reports an engine or interpreter that could not be brought up.
// Nothing can be retried once it is returned.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// UsageError is raised with panic when a scope protocol is used out of
// order, for example releasing a lock that is not held or ending an
// interpreter that still has thread states.
type UsageError struct {
	Op     string
	Thread string
	Err    error
}

func (e *UsageError) Error() string {
	if e.Thread == "" {
		return fmt.Sprintf("usage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("usage: %s (thread %s): %v", e.Op, e.Thread, e.Err)
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// ScriptError wraps a failure raised by code running inside an interpreter.
// The interpreter stays usable after it.
type ScriptError struct {
	Interpreter string
	Err         error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script error in %s: %v", e.Interpreter, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// PanicError carries a panic recovered from a worker goroutine.
type PanicError struct {
	Label string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker %s panicked: %v\n%s", e.Label, e.Value, e.Stack)
}

func usage(op string, t *Thread, err error) {
	ue := &UsageError{Op: op, Err: err}
	if t != nil {
		ue.Thread = t.name
	}
	panic(ue)
}
