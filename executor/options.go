package executor

import (
	"io"
	"time"

	"github.com/caffeineduck/subinterp/hostfunc"
	"go.uber.org/zap"
)

// Option configures a Runtime at Start.
type Option func(*runtimeConfig)

type runtimeConfig struct {
	logger     *zap.Logger
	stdout     io.Writer
	host       *hostfunc.Registry
	mainName   string
	runTimeout time.Duration
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		logger:   zap.NewNop(),
		mainName: "main",
	}
}

// WithLogger sets the logger for lifecycle and lock events.
// The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *runtimeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStdout echoes everything scripts print to w, in addition to the
// captured Result.Output. Writes happen while the execution lock is held,
// so output from different threads never interleaves mid-line.
func WithStdout(w io.Writer) Option {
	return func(c *runtimeConfig) {
		c.stdout = w
	}
}

// WithHostFuncs exposes the registry's functions to every interpreter.
func WithHostFuncs(r *hostfunc.Registry) Option {
	return func(c *runtimeConfig) {
		c.host = r
	}
}

// WithMainName names the main interpreter and the thread that starts the
// runtime. Defaults to "main".
func WithMainName(name string) Option {
	return func(c *runtimeConfig) {
		if name != "" {
			c.mainName = name
		}
	}
}

// WithRunTimeout bounds every Thread.Run. Zero means no limit.
func WithRunTimeout(d time.Duration) Option {
	return func(c *runtimeConfig) {
		c.runTimeout = d
	}
}
