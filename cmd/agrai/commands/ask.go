package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agrai/agrai-go/internal/chat"
	"github.com/agrai/agrai-go/internal/logging"
	"github.com/agrai/agrai-go/internal/provider"
)

// NewAskCmd constructs the `agrai ask` command, which sends a single question
// to the assistant and prints the answer to stdout.
func NewAskCmd() *cobra.Command {
	var owner string
	var showContext bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the farming assistant a question",
		Long: `Ask the assistant a natural language farming question.

The answer is grounded in the owner's past conversations: similar previous
exchanges are retrieved from semantic memory and injected into the prompt,
and the new exchange is stored for future questions.

Examples:
  agrai ask --owner amara "when should I water my tomato plants?"
  agrai ask --owner amara --show-context "how do I improve clay soil?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			mem, _, err := openMemoryStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			history, closeHistory := openHistory(log)
			defer closeHistory()

			assistant, err := chat.New(&chat.Config{
				ChatModel:      chatModel,
				Memory:         mem,
				History:        history,
				ContextResults: contextResultsFromEnv(3),
			})
			if err != nil {
				return fmt.Errorf("ask: failed to initialise assistant: %w", err)
			}

			question := strings.Join(args, " ")

			if showContext {
				block, ctxErr := mem.RelevantContext(ctx, question, owner, contextResultsFromEnv(3))
				if ctxErr != nil {
					return fmt.Errorf("ask: retrieve context: %w", ctxErr)
				}
				fmt.Fprintln(cmd.OutOrStdout(), block)
				fmt.Fprintln(cmd.OutOrStdout())
			}

			reply, err := assistant.Answer(ctx, owner, question)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), reply.Answer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "default", "Owner whose conversation memory grounds the answer")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "Print the retrieved memory context before the answer")

	return cmd
}
