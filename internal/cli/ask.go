package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/falachefe/consultant/internal/models"
	"github.com/falachefe/consultant/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	askUser         string
	askConversation string
	askPhone        string
	askSource       string
	askDeliver      bool
	askJSON         bool
	askStats        bool
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Run a message through the full pipeline",
	Long: `Run one message through classification, specialist, memory and delivery.

By default the answer is printed and not pushed to WhatsApp. Use --deliver
with --phone to send it through the UAZAPI gateway.

Examples:
  falachefe ask "oi"
  falachefe ask "Qual é o meu saldo atual?" --user 7f3c...
  falachefe ask "Como divulgar minha padaria?" --deliver --phone 5511999999999
  falachefe ask "Registre uma venda de 150 reais" --json --stats`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askUser, "user", "u", "cli-user", "user id")
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "conversation id (defaults to the user id)")
	askCmd.Flags().StringVarP(&askPhone, "phone", "p", "", "recipient phone number")
	askCmd.Flags().StringVar(&askSource, "source", "cli", "channel source")
	askCmd.Flags().BoolVar(&askDeliver, "deliver", false, "push the answer through the messaging gateway")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full response as JSON")
	askCmd.Flags().BoolVar(&askStats, "stats", false, "print runtime statistics after the run")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}

	conversation := askConversation
	if conversation == "" {
		conversation = askUser
	}
	channel := map[string]string{models.ChannelKeySource: askSource}
	if askPhone != "" {
		channel[models.ChannelKeyPhoneNumber] = askPhone
	}
	if !askDeliver {
		channel[models.ChannelKeyInline] = "true"
	}

	resp := p.Handle(ctx, models.Request{
		UserID:         askUser,
		ConversationID: conversation,
		RawText:        args[0],
		ChannelContext: channel,
		ReceivedAt:     time.Now(),
	})

	if askJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	} else {
		printResponse(resp)
	}

	if askStats {
		fmt.Println()
		printMetrics(collector.Snapshot())
	}
	if !resp.Success {
		return fmt.Errorf("pipeline failed: %s", resp.Metadata.String(pipeline.MetaDeliveryError))
	}
	return nil
}

func printResponse(resp models.Response) {
	header := defaultTheme.completedStyle().Render("✓ answered")
	if resp.Metadata.String(pipeline.MetaState) == string(pipeline.StateErrored) {
		header = defaultTheme.errorStyle().Render("✗ " + resp.Metadata.String(pipeline.MetaErrorType))
	}
	fmt.Println(header)
	fmt.Println()
	fmt.Println(resp.ResponseText)
	fmt.Println()

	tw := newTable()
	tw.AppendHeader(rowOf("Key", "Value"))
	for _, key := range []string{
		pipeline.MetaRequestID,
		pipeline.MetaIntent,
		pipeline.MetaSpecialist,
		pipeline.MetaConfidence,
		pipeline.MetaState,
		pipeline.MetaDeliveryMode,
		pipeline.MetaDelivered,
		pipeline.MetaChannelMessageID,
		pipeline.MetaDeliveryError,
		pipeline.MetaError,
		pipeline.MetaMemoryError,
		pipeline.MetaProcessingTimeMs,
	} {
		if v, ok := resp.Metadata[key]; ok {
			tw.AppendRow(rowOf(key, v))
		}
	}
	tw.Render()
}
