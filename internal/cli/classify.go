package cli

import (
	"fmt"

	"github.com/falachefe/consultant/internal/models"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <message>",
	Short: "Classify a message without running a specialist",
	Long: `Show how a message would be routed: intent, specialist, confidence and
whether the keyword fallback was used.

Examples:
  falachefe classify "oi"
  falachefe classify "Quanto gastei com fornecedores este mês?"`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{skipStore: "true"},
	RunE:        runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	c, err := newClassifier(cmd.Context())
	if err != nil {
		return err
	}
	result := c.Classify(cmd.Context(), args[0], nil)

	tw := newTable()
	tw.AppendHeader(rowOf("Field", "Value"))
	tw.AppendRow(rowOf("intent", result.Intent))
	tw.AppendRow(rowOf("specialist", result.Specialist))
	tw.AppendRow(rowOf("confidence", fmt.Sprintf("%.2f", result.Confidence)))
	tw.AppendRow(rowOf("needs_specialist", result.NeedsSpecialist))
	tw.AppendRow(rowOf("degraded", result.Degraded))
	if result.Reasoning != "" {
		tw.AppendRow(rowOf("reasoning", models.Truncate(result.Reasoning, 80)))
	}
	if result.DirectReply != nil {
		tw.AppendRow(rowOf("reply", models.Truncate(*result.DirectReply, 80)))
	}
	tw.Render()
	return nil
}
