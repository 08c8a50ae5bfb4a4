package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/fieldmend/fieldmend/internal/common"
	"github.com/fieldmend/fieldmend/internal/engine"
	"github.com/fieldmend/fieldmend/internal/model"
	"github.com/fieldmend/fieldmend/internal/sample"
	"github.com/fieldmend/fieldmend/internal/service"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process [invoice.yaml]",
		Short: "Run the correction pipeline on invoices",
		Long: `Run Recall, Apply and Decide for one invoice document, or for a
directory of documents with --dir. Proposed corrections and the
decision are printed; nothing is learned until 'fieldmend review'.`,
		RunE: runProcess,
	}

	cmd.Flags().String("dir", "", "process all invoice YAML files in a directory")

	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")

	if dir == "" && len(args) != 1 {
		return fmt.Errorf("provide an invoice file or --dir")
	}

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng := engine.New(store)

	if dir != "" {
		return processDirectory(ctx, eng, dir)
	}

	inv, err := sample.LoadInvoice(args[0])
	if err != nil {
		return common.NewUserError("could not load invoice", err)
	}

	corrections, decision, err := processOne(ctx, eng, inv)
	if err != nil {
		return err
	}

	printCorrections(corrections)
	printDecision(inv, decision)
	return nil
}

func processOne(ctx context.Context, eng *engine.Engine, inv *model.Invoice) ([]model.ProposedCorrection, model.Decision, error) {
	_, corrections, decision, err := eng.Process(ctx, inv)
	if err != nil {
		return nil, model.Decision{}, err
	}
	return corrections, decision, nil
}

func processDirectory(ctx context.Context, eng *engine.Engine, dir string) error {
	invoices, err := sample.LoadInvoices(dir)
	if err != nil {
		return err
	}
	if len(invoices) == 0 {
		fmt.Println("No invoice files found.")
		return nil
	}

	bar := progressbar.NewOptions(len(invoices),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Processing invoices..."),
	)

	stats := service.PipelineStats{TotalDocuments: len(invoices)}
	start := time.Now()

	for i := range invoices {
		_, decision, runErr := processOne(ctx, eng, &invoices[i])
		if runErr != nil {
			// One bad document does not abort the batch.
			common.LogError(runErr, "Failed to process document", common.Fields{
				"document_id": invoices[i].ID,
				"vendor":      invoices[i].Vendor,
			})
			stats.Escalated++
			_ = bar.Add(1)
			continue
		}

		switch decision.Outcome {
		case model.AutoAccept:
			stats.AutoAccepted++
		case model.AutoCorrect:
			stats.AutoCorrected++
		case model.Escalate:
			stats.Escalated++
		}
		_ = bar.Add(1)
	}
	stats.Duration = time.Since(start)

	fmt.Printf("\nProcessed %d documents in %s\n", stats.TotalDocuments, stats.Duration.Round(time.Millisecond))
	fmt.Printf("  auto-accepted: %d\n", stats.AutoAccepted)
	fmt.Printf("  auto-corrected: %d\n", stats.AutoCorrected)
	fmt.Printf("  escalated: %d\n", stats.Escalated)
	return nil
}

func printCorrections(corrections []model.ProposedCorrection) {
	if len(corrections) == 0 {
		fmt.Println("No corrections proposed.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	fmt.Fprintf(w, "FIELD\tFROM\tTO\tCONFIDENCE\tSOURCE\tREASON\n")
	for _, c := range corrections {
		fmt.Fprintf(w, "%s\t%v\t%v\t%.2f\t%s\t%s\n",
			c.Field, displayValue(c.From), displayValue(c.To), c.Confidence, c.Source, c.Reason)
	}
}

func printDecision(inv *model.Invoice, decision model.Decision) {
	fmt.Printf("\nDocument %s (%s)\n", inv.ID, inv.Vendor)
	fmt.Printf("  outcome: %s\n", decision.Outcome)
	fmt.Printf("  confidence: %.2f\n", decision.ConfidenceScore)
	fmt.Printf("  human review: %v\n", decision.RequiresHumanReview)
	fmt.Printf("  reasoning: %s\n", decision.Reasoning)
}

func displayValue(v any) any {
	if v == nil {
		return "-"
	}
	return v
}
