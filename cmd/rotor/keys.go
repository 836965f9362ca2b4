package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"spiralcodex/rotor/pkg/catalog"
)

var keysFlags struct {
	apiKey string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage provider API keys",
	Long: `Store, replace, and remove provider API keys.

Keys are encrypted at rest under a locally generated AES-256 key with
owner-only file permissions. Storing a key for a provider that is not
yet in rotation adds it; storing a key for an errored provider clears
the error.

Subcommands:
  set    - Store or replace a provider's API key
  remove - Remove a provider and its key from the rotation
  list   - List providers with stored keys

Examples:
  # Prompt for a key on stdin (recommended; avoids shell history)
  rotor keys set openrouter

  # Supply the key as a flag
  rotor keys set together --api-key "..."

  # Remove a provider
  rotor keys remove huggingface`,
}

var keysSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Store or replace a provider's API key",
	Args:  cobra.ExactArgs(1),
	RunE:  setKey,
}

var keysRemoveCmd = &cobra.Command{
	Use:   "remove <provider>",
	Short: "Remove a provider and its key from the rotation",
	Args:  cobra.ExactArgs(1),
	RunE:  removeKey,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers with stored keys",
	RunE:  listKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysSetCmd, keysRemoveCmd, keysListCmd)

	keysSetCmd.Flags().StringVar(&keysFlags.apiKey, "api-key", "", "API key (prompted on stdin if empty)")
}

func setKey(cmd *cobra.Command, args []string) error {
	providerID := args[0]

	apiKey := keysFlags.apiKey
	if apiKey == "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "API key for %s: ", providerID)
		reader := bufio.NewReader(cmd.InOrStdin())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		apiKey = strings.TrimSpace(line)
	}
	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	for _, u := range eng.Status() {
		if u.ID == providerID {
			if err := eng.SetCredential(providerID, apiKey); err != nil {
				return err
			}
			fmt.Printf("Key updated for %s\n", providerID)
			return nil
		}
	}

	desc, ok := catalog.Lookup(providerID)
	if !ok {
		return fmt.Errorf("unknown provider %q (known: %s); declare custom providers in a --providers file",
			providerID, strings.Join(builtinIDs(), ", "))
	}
	if err := eng.AddProvider(desc, apiKey); err != nil {
		return err
	}
	fmt.Printf("Provider %s added to rotation\n", providerID)
	return nil
}

func removeKey(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.RemoveProvider(args[0]); err != nil {
		return err
	}
	fmt.Printf("Provider %s removed\n", args[0])
	return nil
}

func listKeys(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	report := eng.Status()
	if len(report) == 0 {
		fmt.Println("No providers configured.")
		return nil
	}
	for _, u := range report {
		fmt.Printf("%s (%s)\n", u.ID, u.Status)
	}
	return nil
}

func builtinIDs() []string {
	var ids []string
	for _, d := range catalog.Builtin() {
		ids = append(ids, d.ID)
	}
	return ids
}
