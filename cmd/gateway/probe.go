package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/handlers"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/keypool"
)

var (
	probePrompt string
	probeModel  string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Send one request through the key pool and print the attempts",
	Long: `probe runs a single prompt through the same rotation and fallback logic
the server uses, then prints the answer, every attempt and the resulting key
status. It is meant for checking credentials before a deploy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, err := buildGateway(cfg, logger)
		if err != nil {
			return err
		}
		return probe(cmd.Context(), gw)
	},
}

func init() {
	probeCmd.Flags().StringVarP(&probePrompt, "prompt", "p", handlers.DefaultProbePrompt, "prompt to send")
	probeCmd.Flags().StringVarP(&probeModel, "model", "m", "", "preferred model (default: top of the ladder)")
}

type probeReport struct {
	Success  bool              `json:"success"`
	Text     string            `json:"text,omitempty"`
	Model    string            `json:"model,omitempty"`
	Error    string            `json:"error,omitempty"`
	Attempts []gateway.Attempt `json:"attempts"`
	Keys     []keypool.Status  `json:"keys"`
}

func probe(ctx context.Context, gw *gateway.Gateway) error {
	if ctx == nil {
		ctx = context.Background()
	}

	res, record, err := gw.Generate(ctx, probePrompt, gateway.Options{Model: probeModel})

	report := probeReport{Attempts: record.Attempts, Keys: gw.KeysStatus()}
	if err != nil {
		report.Error = err.Error()
	} else {
		report.Success = true
		report.Text = res.Text
		report.Model = res.Model
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(report); encErr != nil {
		return encErr
	}
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	return nil
}
