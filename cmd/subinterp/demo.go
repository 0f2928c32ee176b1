package main

import (
	"github.com/caffeineduck/subinterp/executor"
	"github.com/caffeineduck/subinterp/language/lua"
	"github.com/caffeineduck/subinterp/scenario"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Play a scenario (the built-in demonstration by default)",
	Long: `Play a scenario file describing interpreters and worker threads.

Without --file the built-in demonstration runs:

  main: setting sys.xxx={'abc'}
  t1(s1): sys.xxx=attribute not set
  t2(s2): sys.xxx=attribute not set
  t3(s1): sys.xxx=attribute not set
  t4(main): sys.xxx={'abc'}

Output is printed per worker in declaration order. With --json the report
is printed as a JSON object instead.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	addDemoFlags(demoCmd)
	rootCmd.AddCommand(demoCmd)
}

func addDemoFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "", "Scenario YAML file")
	cmd.Flags().Bool("json", false, "Print the report as JSON")
}

func runDemo(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	asJSON, _ := cmd.Flags().GetBool("json")

	sc := scenario.Default()
	if file != "" {
		var err error
		if sc, err = scenario.Load(file); err != nil {
			return err
		}
	}

	var report *scenario.Report
	err := executor.With(lua.New(), func(rt *executor.Runtime, main *executor.Thread) error {
		var err error
		report, err = scenario.Play(cmd.Context(), rt, sc)
		return err
	}, runtimeOptions(cmd)...)

	if report != nil {
		if werr := writeReport(cmd, report, asJSON); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	return report.Err()
}

func writeReport(cmd *cobra.Command, report *scenario.Report, asJSON bool) error {
	if !asJSON {
		return report.Write(cmd.OutOrStdout())
	}
	doc, err := report.JSON()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(pretty.Pretty(doc))
	return err
}
