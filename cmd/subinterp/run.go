package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caffeineduck/subinterp/executor"
	"github.com/caffeineduck/subinterp/language/lua"
	"github.com/spf13/cobra"
)

var errNoSource = errors.New("no code: pass a file, use -c, or pipe code on stdin")

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run code concurrently in fresh sub-interpreters",
	Long: `Run Lua code in N fresh sub-interpreters, one worker thread each.

Code can be provided via:
  - File argument: subinterp run script.lua
  - Inline flag: subinterp run -c 'print(sys.name)'
  - Stdin: echo 'print(sys.name)' | subinterp run

Workers are labelled t1(s1), t2(s2), ... and their output is printed in
that order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("code", "c", "", "Code to execute")
	runCmd.Flags().IntP("interpreters", "n", 1, "Number of sub-interpreters")
	runCmd.Flags().Duration("timeout", 30*time.Second, "Execution timeout")
	rootCmd.AddCommand(runCmd)
}

func readSource(cmd *cobra.Command, args []string) (string, error) {
	if code, _ := cmd.Flags().GetString("code"); code != "" {
		return code, nil
	}
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		// No piped input
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return "", errNoSource
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errNoSource
	}
	return string(data), nil
}

func runRun(cmd *cobra.Command, args []string) error {
	source, err := readSource(cmd, args)
	if err != nil {
		return err
	}

	n, _ := cmd.Flags().GetInt("interpreters")
	if n < 1 {
		return fmt.Errorf("--interpreters must be at least 1, got %d", n)
	}

	ctx := cmd.Context()
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	return executor.With(lua.New(), func(rt *executor.Runtime, main *executor.Thread) (err error) {
		interps := make([]*executor.Interpreter, 0, n)
		defer func() {
			err = errors.Join(err, executor.CloseAll(main, interps...))
		}()
		for i := 0; i < n; i++ {
			in, err := rt.NewInterpreter(main, fmt.Sprintf("s%d", i+1))
			if err != nil {
				return err
			}
			interps = append(interps, in)
		}

		workers := make([]*executor.Worker, n)
		for i, in := range interps {
			workers[i] = rt.Spawn(ctx, in, fmt.Sprintf("t%d(%s)", i+1, in.Name()), source)
		}

		defer main.AllowThreads().End()
		for _, w := range workers {
			<-w.Done()
		}

		var errs []error
		for _, w := range workers {
			res := w.Wait()
			fmt.Fprint(out, res.Output)
			if res.Error != nil {
				errs = append(errs, fmt.Errorf("%s: %w", w.Label(), res.Error))
			}
		}
		return errors.Join(errs...)
	}, runtimeOptions(cmd)...)
}
