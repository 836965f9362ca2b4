package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var modelsFlags struct {
	timeout time.Duration
	free    bool
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models from every active provider",
	Long: `List the models offered by each active provider. Providers that are
exhausted, errored, or disabled are skipped; a provider whose listing
fails is reported but does not fail the command.

With --free, only zero-cost models are listed: providers that publish
pricing tables are filtered live, the rest fall back to their known
free-model lists.`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.Flags().DurationVar(&modelsFlags.timeout, "timeout", 30*time.Second, "listing timeout")
	modelsCmd.Flags().BoolVar(&modelsFlags.free, "free", false, "only list zero-cost models")
}

func runModels(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), modelsFlags.timeout)
	defer cancel()

	byProvider := eng.Models(ctx)
	if modelsFlags.free {
		byProvider = eng.FreeModels(ctx)
	}
	if len(byProvider) == 0 {
		fmt.Println("No active providers. Configure one with 'rotor keys set <provider>'.")
		return nil
	}

	ids := make([]string, 0, len(byProvider))
	for id := range byProvider {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fmt.Printf("%s (%d models):\n", id, len(byProvider[id]))
		for _, m := range byProvider[id] {
			fmt.Printf("  %s\n", m.ID)
		}
		fmt.Println()
	}
	return nil
}
