package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spiralcodex/rotor/pkg/providers"
)

var chatFlags struct {
	model   string
	system  string
	timeout time.Duration
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a chat message through the rotation",
	Long: `Send a chat message to the current provider, rotating to the next
one automatically if it is out of quota or its credential is rejected.

Examples:
  # Use the current provider's default model
  rotor chat "Explain WAL mode in SQLite"

  # Name a model explicitly
  rotor chat --model mistralai/mistral-7b-instruct:free "Hello"

  # Prepend a system prompt
  rotor chat --system "Answer in one sentence." "What is a goroutine?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&chatFlags.model, "model", "m", "", "model ID (provider default if empty)")
	chatCmd.Flags().StringVar(&chatFlags.system, "system", "", "system prompt")
	chatCmd.Flags().DurationVar(&chatFlags.timeout, "timeout", 2*time.Minute, "request timeout")
}

func runChat(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	var messages []providers.Message
	if chatFlags.system != "" {
		messages = append(messages, providers.Message{
			Role:    providers.RoleSystem,
			Content: chatFlags.system,
		})
	}
	messages = append(messages, providers.Message{
		Role:    providers.RoleUser,
		Content: strings.Join(args, " "),
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), chatFlags.timeout)
	defer cancel()

	resp, err := eng.Send(ctx, chatFlags.model, messages)
	if err != nil {
		return err
	}

	fmt.Println(resp.Content)
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n[%s %s: %d prompt + %d completion tokens]\n",
			resp.Provider, resp.Model,
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens,
		)
	}
	return nil
}
