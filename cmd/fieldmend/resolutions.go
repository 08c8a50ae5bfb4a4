package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func resolutionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolutions <documentID>",
		Short: "Show the audit trail for a document",
		Long:  `List every recorded human decision for a document, newest first.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			documentID := args[0]
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			records, err := store.GetResolutions(ctx, documentID)
			if err != nil {
				return fmt.Errorf("failed to get resolutions: %w", err)
			}
			if len(records) == 0 {
				fmt.Printf("No resolutions recorded for document %q.\n", documentID)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintf(w, "TIMESTAMP\tVENDOR\tKIND\tMEMORY\tAPPROVED\tDELTA\n")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%+.2f\n",
					r.Timestamp.Format("2006-01-02 15:04:05"),
					r.Vendor, r.MemoryKind, r.MemoryRef, r.Approved, r.ConfidenceDelta)
			}
			return nil
		},
	}
}
