package executor

import (
	"context"
	"io"

	"github.com/caffeineduck/subinterp/hostfunc"
)

// Backend is the embedded scripting engine. Implement this interface to run
// interpreters on a different engine; see
// [github.com/caffeineduck/subinterp/language/lua] for the default one.
//
// NewInstance and every Instance method are called while the calling thread
// holds the execution lock. Init and Finalize run outside the lock; they are
// serialized by the one-runtime-per-process rule. Implementations need no
// locking of their own.
type Backend interface {
	// Name identifies the engine in logs and errors (e.g., "lua").
	Name() string

	// Init prepares process-wide engine state. It is called once by Start.
	Init() error

	// Finalize releases what Init prepared. It is called once by Stop,
	// after every instance has been closed.
	Finalize() error

	// NewInstance creates an interpreter with its own global namespace,
	// seeded with the engine's standard environment.
	NewInstance(cfg InstanceConfig) (Instance, error)
}

// InstanceConfig describes the interpreter an Instance backs.
type InstanceConfig struct {
	ID   ID
	Name string
	Main bool

	// Host holds the Go functions exposed to scripts. May be nil.
	Host *hostfunc.Registry
}

// Instance is one interpreter's global namespace inside a Backend.
type Instance interface {
	// Exec runs code against this instance's globals, writing anything the
	// code prints to stdout.
	Exec(ctx context.Context, code string, stdout io.Writer) error

	// Close ends the interpreter. The instance is not used afterwards.
	Close() error
}
