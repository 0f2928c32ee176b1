package main

import (
	"os"

	"github.com/caffeineduck/subinterp/executor"
	"github.com/caffeineduck/subinterp/hostfunc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var rootCmd = &cobra.Command{
	Use:   "subinterp",
	Short: "Run Lua code in isolated sub-interpreters sharing one engine",
	Long: `subinterp - isolated interpreters, one engine, one execution lock.

Every interpreter has its own globals. Worker threads enter an interpreter,
run, and leave; only one thread runs script code at a time.

Without a subcommand the built-in demonstration is played: two
sub-interpreters and four threads, of which only the one running in the
main interpreter sees a value set there.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runDemo, // Default to demo command behavior
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log lifecycle and lock events to stderr")
	rootCmd.PersistentFlags().Bool("kv", false, "Expose a key-value store shared by all interpreters")

	addDemoFlags(rootCmd)
}

// newLogger returns a development logger writing to the command's stderr
// when --verbose is set, and a no-op logger otherwise.
func newLogger(cmd *cobra.Command) *zap.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return zap.NewNop()
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(cmd.ErrOrStderr()),
		zapcore.DebugLevel,
	)
	return zap.New(core, zap.Development())
}

// runtimeOptions builds the executor options shared by every command.
func runtimeOptions(cmd *cobra.Command) []executor.Option {
	var kv *hostfunc.KVStore
	if enableKV, _ := cmd.Flags().GetBool("kv"); enableKV {
		kv = hostfunc.NewKV(hostfunc.DefaultKVConfig())
	}

	return []executor.Option{
		executor.WithLogger(newLogger(cmd)),
		executor.WithHostFuncs(hostfunc.NewDefaultRegistry(kv)),
	}
}
