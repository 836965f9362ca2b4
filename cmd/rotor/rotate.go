package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Manually advance the rotation cursor",
	Long: `Advance the rotation cursor to the next provider. The new position
is persisted, so the next chat request starts there. With fewer than
two providers this is a no-op.`,
	RunE: runRotate,
}

func init() {
	rootCmd.AddCommand(rotateCmd)
}

func runRotate(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	eng.Rotate()
	if current, ok := eng.Current(); ok {
		fmt.Printf("Next request will use %s\n", current)
	} else {
		fmt.Println("No providers available.")
	}
	return nil
}
