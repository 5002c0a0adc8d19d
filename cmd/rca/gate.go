package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/rcagov/internal/gates"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "RCA gate commands",
}

var gateCheckCmd = &cobra.Command{
	Use:   "check <scope-id>",
	Short: "Evaluate the RCA gate for a scope",
	Long: `Evaluate the RCA gate for a scope. The gate is blocked while the scope has an
open P0 or P1 report whose CAPA is not VERIFIED.

Exit status is 0 when the gate passes and 1 when it is blocked, so the command
can guard a handoff in a script:

  rca gate check SD-42 && ./handoff.sh SD-42`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		result, err := svc.EvaluateGate(context.Background(), args[0])
		exitOnError("failed to evaluate gate", err)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(result)
		} else {
			fmt.Print(gates.FormatResult(result))
		}

		if code := gateExitCode(result); code != 0 {
			teardown()
			os.Exit(code)
		}
	},
}

// gateExitCode is 0 for a passing gate and 1 for a blocked one.
func gateExitCode(result *gates.Result) int {
	if result.Pass {
		return 0
	}
	return 1
}

func init() {
	gateCheckCmd.Flags().Bool("json", false, "Output JSON")
	gateCmd.AddCommand(gateCheckCmd)
	rootCmd.AddCommand(gateCmd)
}
