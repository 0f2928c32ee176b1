package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/caffeineduck/subinterp/executor"
	"github.com/caffeineduck/subinterp/hostfunc"
	"github.com/caffeineduck/subinterp/language/lua"
	"go.uber.org/zap"
)

// Only one runtime may be live per process.
var mu sync.Mutex

type Config struct {
	Timeout  time.Duration
	Registry *hostfunc.Registry
	KVStore  *hostfunc.KVStore
	Logger   *zap.Logger
	Stdout   io.Writer
	Lua      []lua.Option
}

func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}

// Run starts a runtime, runs code from a worker thread in a fresh
// sub-interpreter and tears everything down again. Concurrent calls are
// serialized.
func Run(ctx context.Context, code string, cfg Config) executor.Result {
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	kv := cfg.KVStore
	if kv == nil {
		kv = hostfunc.NewKV(hostfunc.DefaultKVConfig())
	}

	registry := cfg.Registry
	if registry == nil {
		registry = hostfunc.NewDefaultRegistry(kv)
	} else {
		registry.Register("time_now", hostfunc.TimeNow)
		kv.RegisterTo(registry)
	}

	var result executor.Result
	err := executor.With(lua.New(cfg.Lua...), func(rt *executor.Runtime, main *executor.Thread) (err error) {
		sub, err := rt.NewInterpreter(main, "sandbox")
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, executor.CloseAll(main, sub))
		}()

		w := rt.Spawn(ctx, sub, "sandbox", code)
		defer main.AllowThreads().End()
		result = wait(w)
		return nil
	},
		executor.WithLogger(cfg.Logger),
		executor.WithHostFuncs(registry),
		executor.WithStdout(cfg.Stdout),
	)

	if err != nil {
		result.Error = err
	} else if result.Error != nil && ctx.Err() == context.DeadlineExceeded {
		result.Error = fmt.Errorf("timeout after %v: %w", cfg.Timeout, result.Error)
	}
	result.Duration = time.Since(start)
	return result
}

// wait turns a worker panic into an error so the runtime still stops.
func wait(w *executor.Worker) (res executor.Result) {
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(*executor.PanicError)
			if !ok {
				panic(r)
			}
			res.Error = pe
		}
	}()
	return w.Wait()
}
