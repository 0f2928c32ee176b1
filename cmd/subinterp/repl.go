package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/subinterp/executor"
	"github.com/caffeineduck/subinterp/language/lua"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive shell across several interpreters",
	Long: `Start an interactive shell on the main thread.

Lines are run in the current interpreter. Meta commands:
  :new NAME    create a sub-interpreter
  :use NAME    switch the current interpreter (main is always available)
  :drop NAME   close a sub-interpreter
  :list        list interpreters, marking the current one
  :help        show this list

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.subinterp_history)")
	rootCmd.AddCommand(replCmd)
}

const shellHelp = `:new NAME    create a sub-interpreter
:use NAME    switch the current interpreter
:drop NAME   close a sub-interpreter
:list        list interpreters
`

// shell evaluates lines on the main thread. Switching interpreters swaps
// the main thread's binding to the target's initial thread state.
type shell struct {
	ctx    context.Context
	rt     *executor.Runtime
	main   *executor.Thread
	subs   map[string]*executor.Interpreter
	swap   *executor.BindingSwap
	out    io.Writer
	errOut io.Writer
}

func newShell(ctx context.Context, rt *executor.Runtime, out, errOut io.Writer) *shell {
	return &shell{
		ctx:    ctx,
		rt:     rt,
		main:   rt.MainThread(),
		subs:   make(map[string]*executor.Interpreter),
		out:    out,
		errOut: errOut,
	}
}

func (s *shell) current() *executor.Interpreter {
	return s.main.Interpreter()
}

func (s *shell) prompt() string {
	return s.current().Name() + "> "
}

// eval handles one line and reports whether the shell should exit.
func (s *shell) eval(line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "exit" || line == "quit":
		return true
	case strings.HasPrefix(line, ":"):
		if err := s.meta(strings.Fields(line[1:])); err != nil {
			fmt.Fprintf(s.errOut, "Error: %v\n", err)
		}
		return false
	}

	result := s.main.Run(s.ctx, line)
	if result.Output != "" {
		fmt.Fprint(s.out, result.Output)
		if !strings.HasSuffix(result.Output, "\n") {
			fmt.Fprintln(s.out)
		}
	}
	if result.Error != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", result.Error)
	}
	return false
}

func (s *shell) meta(fields []string) error {
	if len(fields) == 0 {
		return fmt.Errorf("empty command, try :help")
	}
	cmd, args := fields[0], fields[1:]

	needName := func() (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf(":%s takes exactly one name", cmd)
		}
		return args[0], nil
	}

	switch cmd {
	case "new":
		name, err := needName()
		if err != nil {
			return err
		}
		return s.create(name)
	case "use":
		name, err := needName()
		if err != nil {
			return err
		}
		return s.use(name)
	case "drop":
		name, err := needName()
		if err != nil {
			return err
		}
		return s.drop(name)
	case "list":
		s.list()
		return nil
	case "help":
		fmt.Fprint(s.out, shellHelp)
		return nil
	default:
		return fmt.Errorf("unknown command :%s, try :help", cmd)
	}
}

func (s *shell) create(name string) error {
	if name == s.rt.Main().Name() || s.subs[name] != nil {
		return fmt.Errorf("interpreter %q already exists", name)
	}
	in, err := s.rt.NewInterpreter(s.main, name)
	if err != nil {
		return err
	}
	s.subs[name] = in
	fmt.Fprintf(s.out, "created %s\n", name)
	return nil
}

func (s *shell) use(name string) error {
	var target *executor.Interpreter
	if name == s.rt.Main().Name() {
		target = s.rt.Main()
	} else if target = s.subs[name]; target == nil {
		return fmt.Errorf("no interpreter %q", name)
	}

	if s.swap != nil {
		s.swap.Restore()
		s.swap = nil
	}
	if !target.IsMain() {
		s.swap = s.main.SwapBinding(target.State())
	}
	return nil
}

func (s *shell) drop(name string) error {
	in := s.subs[name]
	if in == nil {
		return fmt.Errorf("no sub-interpreter %q", name)
	}
	if in == s.current() {
		return fmt.Errorf("%q is the current interpreter, :use another first", name)
	}
	delete(s.subs, name)
	return in.Close(s.main)
}

func (s *shell) list() {
	for _, in := range s.rt.Interpreters(s.main) {
		mark := " "
		if in == s.current() {
			mark = "*"
		}
		fmt.Fprintf(s.out, "%s %s\n", mark, in.Name())
	}
}

// close switches back to the main interpreter and closes every
// sub-interpreter, most recent first.
func (s *shell) close() error {
	if s.swap != nil {
		s.swap.Restore()
		s.swap = nil
	}
	var firstErr error
	interps := s.rt.Interpreters(s.main)
	for i := len(interps) - 1; i >= 1; i-- {
		if err := interps[i].Close(s.main); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.subs = make(map[string]*executor.Interpreter)
	return firstErr
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".subinterp_history")
	}

	return executor.With(lua.New(), func(rt *executor.Runtime, main *executor.Thread) error {
		sh := newShell(cmd.Context(), rt, cmd.OutOrStdout(), cmd.ErrOrStderr())
		defer sh.close()

		rl, err := readline.NewEx(&readline.Config{
			Prompt:            sh.prompt(),
			HistoryFile:       historyFile,
			HistoryLimit:      1000,
			InterruptPrompt:   "^C",
			EOFPrompt:         "exit",
			HistorySearchFold: true,
		})
		if err != nil {
			return fmt.Errorf("initializing readline: %w", err)
		}
		defer rl.Close()

		fmt.Fprintln(cmd.ErrOrStderr(), "subinterp lua shell (type :help for commands, 'exit' to quit)")
		return sh.loop(rl)
	}, runtimeOptions(cmd)...)
}

func (s *shell) loop(rl *readline.Instance) error {
	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(s.prompt())
				}
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(s.out)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		// Handle multi-line input
		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt("... ")
			continue
		}
		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
		}

		if s.eval(line) {
			return nil
		}
		rl.SetPrompt(s.prompt())
	}
}
