package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldmend/fieldmend/internal/common"
	"github.com/fieldmend/fieldmend/internal/engine"
	"github.com/fieldmend/fieldmend/internal/sample"
	"github.com/fieldmend/fieldmend/internal/service"
)

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review <invoice.yaml> <feedback.yaml>",
		Short: "Learn from a human review decision",
		Long: `Fold a reviewer's approval or rejection back into memory. Approvals
reinforce the vendor mappings and correction patterns the feedback
speaks about; rejections only record the audit trail.`,
		Args: cobra.ExactArgs(2),
		RunE: runReview,
	}
}

func runReview(cmd *cobra.Command, args []string) error {
	inv, err := sample.LoadInvoice(args[0])
	if err != nil {
		return common.NewUserError("could not load invoice", err)
	}
	feedback, err := sample.LoadFeedback(args[1])
	if err != nil {
		return common.NewUserError("could not load feedback", err)
	}

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng := engine.New(store)

	// A locked database is the one transient failure worth retrying
	// here; learn is idempotent under retry.
	return common.WithRetry(ctx, func() error {
		return eng.Learn(ctx, inv, feedback)
	}, service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
	})
}
