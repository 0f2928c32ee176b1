package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/caffeineduck/subinterp/executor"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// WorkerReport is the outcome of one worker.
type WorkerReport struct {
	Label       string
	Interpreter string
	Output      string
	Duration    time.Duration
	Err         error
}

// Report collects the output of a played scenario. Workers are listed in
// declaration order, whatever order they actually ran in.
type Report struct {
	Scenario string
	Main     executor.Result
	Workers  []WorkerReport
}

// Err joins the worker failures, each prefixed with its label.
func (r *Report) Err() error {
	var errs []error
	for _, w := range r.Workers {
		if w.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.Label, w.Err))
		}
	}
	return errors.Join(errs...)
}

// Write prints the main output followed by each worker's output.
func (r *Report) Write(w io.Writer) error {
	if _, err := io.WriteString(w, r.Main.Output); err != nil {
		return err
	}
	for _, wr := range r.Workers {
		if _, err := io.WriteString(w, wr.Output); err != nil {
			return err
		}
		if wr.Err != nil {
			if _, err := fmt.Fprintf(w, "%s: %v\n", wr.Label, wr.Err); err != nil {
				return err
			}
		}
	}
	return nil
}

// JSON encodes the report as a single object:
//
//	{"scenario": ..., "main": {"output": ...}, "workers": [{"label": ...,
//	 "interpreter": ..., "output": ..., "duration_ms": ..., "error": ...}]}
//
// error keys are only present on failure.
func (r *Report) JSON() ([]byte, error) {
	doc := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			doc, err = sjson.SetBytes(doc, path, v)
		}
	}

	set("scenario", r.Scenario)
	set("main.output", r.Main.Output)
	if r.Main.Error != nil {
		set("main.error", r.Main.Error.Error())
	}
	set("workers", []any{})
	for i, w := range r.Workers {
		prefix := fmt.Sprintf("workers.%d.", i)
		set(prefix+"label", w.Label)
		set(prefix+"interpreter", w.Interpreter)
		set(prefix+"output", w.Output)
		set(prefix+"duration_ms", float64(w.Duration.Microseconds())/1000)
		if w.Err != nil {
			set(prefix+"error", w.Err.Error())
		}
	}
	return doc, err
}

// Play runs sc on rt from its main thread, which must hold the execution
// lock and be bound to the main interpreter. Interpreters are created in
// order, set up, and closed again in reverse order before Play returns.
// Worker failures are reported in the Report, not as an error.
func Play(ctx context.Context, rt *executor.Runtime, sc *Scenario) (report *Report, err error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	main := rt.MainThread()
	logger := rt.Logger().With(zap.String("scenario", sc.Name))

	interps := map[string]*executor.Interpreter{MainInterpreter: rt.Main()}
	var created []*executor.Interpreter
	defer func() {
		err = errors.Join(err, executor.CloseAll(main, created...))
	}()

	for _, def := range sc.Interpreters {
		in, err := rt.NewInterpreter(main, def.Name)
		if err != nil {
			return nil, err
		}
		created = append(created, in)
		interps[def.Name] = in

		if def.Setup == "" {
			continue
		}
		if err := setup(ctx, main, in, def.Setup); err != nil {
			return nil, err
		}
	}

	report = &Report{Scenario: sc.Name}
	if sc.Main != "" {
		report.Main = main.Run(ctx, sc.Main)
		if report.Main.Error != nil {
			return report, fmt.Errorf("main: %w", report.Main.Error)
		}
	}

	workers := make([]*executor.Worker, len(sc.Workers))
	for i, w := range sc.Workers {
		workers[i] = rt.Spawn(ctx, interps[w.Interpreter], w.Label, sc.Code(w))
	}

	func() {
		defer main.AllowThreads().End()
		for _, w := range workers {
			<-w.Done()
		}
	}()

	for i, w := range workers {
		res := w.Wait()
		report.Workers = append(report.Workers, WorkerReport{
			Label:       w.Label(),
			Interpreter: sc.Workers[i].Interpreter,
			Output:      res.Output,
			Duration:    res.Duration,
			Err:         res.Error,
		})
	}

	logger.Info("scenario played",
		zap.Int("interpreters", len(created)),
		zap.Int("workers", len(workers)),
		zap.NamedError("workers_error", report.Err()))
	return report, nil
}

// setup runs code in a freshly created interpreter by temporarily binding
// the main thread to its initial state.
func setup(ctx context.Context, main *executor.Thread, in *executor.Interpreter, code string) error {
	sw := main.SwapBinding(in.State())
	defer sw.Restore()

	if res := main.Run(ctx, code); res.Error != nil {
		return fmt.Errorf("setup %s: %w", in.Name(), res.Error)
	}
	return nil
}
