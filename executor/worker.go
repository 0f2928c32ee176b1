package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"

	"go.uber.org/zap"
)

// Worker is code running in an interpreter on its own native thread.
type Worker struct {
	label  string
	interp *Interpreter
	done   chan struct{}
	result Result
	panic  *PanicError
}

// Spawn starts a goroutine, locked to its own OS thread, that enters the
// interpreter, runs code and leaves again. The goroutine blocks until it
// can take the execution lock, so a caller holding the lock must release it
// (see Thread.AllowThreads) before waiting on the worker.
func (rt *Runtime) Spawn(ctx context.Context, in *Interpreter, label, code string) *Worker {
	if in.rt != rt {
		usage("spawn", nil, ErrForeignRuntime)
	}
	w := &Worker{
		label:  label,
		interp: in,
		done:   make(chan struct{}),
	}
	go w.run(ctx, rt, code)
	return w
}

func (w *Worker) run(ctx context.Context, rt *Runtime, code string) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.panic = &PanicError{Label: w.label, Value: r, Stack: debug.Stack()}
		}
	}()

	t := rt.NewThread(w.label)
	scope := w.interp.Enter(t)
	defer scope.Close()

	rt.logger.Debug("worker running",
		zap.String("thread", w.label),
		zap.String("interpreter", w.interp.name))

	w.result = t.Run(ctx, code)
}

// Label returns the worker's label.
func (w *Worker) Label() string {
	return w.label
}

// Interpreter returns the interpreter the worker runs in.
func (w *Worker) Interpreter() *Interpreter {
	return w.interp
}

// Done is closed once the worker has left its interpreter.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the worker finishes and returns its result. A panic in
// the worker is re-raised here as a *PanicError.
func (w *Worker) Wait() Result {
	<-w.done
	if w.panic != nil {
		panic(w.panic)
	}
	return w.result
}

// WaitAll waits for every worker and joins their script errors, each
// prefixed with the worker's label.
func WaitAll(workers ...*Worker) error {
	var errs []error
	for _, w := range workers {
		if res := w.Wait(); res.Error != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.label, res.Error))
		}
	}
	return errors.Join(errs...)
}
