package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bezhai/inner-bot-server-sub001/internal/app"
	"github.com/bezhai/inner-bot-server-sub001/internal/filter/bannedword"
	"github.com/bezhai/inner-bot-server-sub001/internal/router"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

var (
	evalMessage string
	evalChatID  string
	evalTimeout time.Duration
	evalNoWords bool
)

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVarP(&evalMessage, "message", "m", "", "message to evaluate (\"-\" reads stdin)")
	evaluateCmd.Flags().StringVar(&evalChatID, "chat-id", "", "chat id passed through as trace context")
	evaluateCmd.Flags().DurationVar(&evalTimeout, "timeout", 30*time.Second, "overall evaluation timeout")
	evaluateCmd.Flags().BoolVar(&evalNoWords, "no-words", false, "skip the banned word store")
	evaluateCmd.MarkFlagRequired("message")
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one message through the gate and print the decision",
	Long: "Builds the full pipeline from the configuration directory, calls the\n" +
		"configured classifier providers and prints the GateDecision as JSON.\n" +
		"Nothing is written to the audit log.",
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

type evaluateOutput struct {
	*types.GateDecision
	RefusalCategory string `json:"refusal_category,omitempty"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	message := evalMessage
	if message == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		message = strings.TrimRight(string(data), "\n")
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	loader, err := loadConfig()
	if err != nil {
		return err
	}

	var words bannedword.Store
	if !evalNoWords {
		b, err := openBackend(ctx, loader.Config())
		if err != nil {
			return fmt.Errorf("open block-list (use --no-words to skip): %w", err)
		}
		defer b.close()
		words = b.words
	}

	g, err := app.Build(loader, app.Options{Words: words})
	if err != nil {
		return err
	}
	defer g.Close()

	d, err := g.Orchestrator.Evaluate(ctx, types.GateRequest{
		MessageContent: message,
		Trace:          types.TraceContext{ChatID: evalChatID},
	})
	if err != nil {
		return fmt.Errorf("gate error: %w", err)
	}

	out := evaluateOutput{GateDecision: d}
	if d.IsBlocked {
		out.RefusalCategory = router.RefusalCategory(d.BlockReason)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}
