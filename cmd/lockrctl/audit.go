package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"lifelockr/internal/audit"
	"lifelockr/internal/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the activity log",
	}

	var uri, db string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Replay the activity log hash chain and report the first broken link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if uri == "" {
				uri = os.Getenv("MONGO_URI")
			}
			if uri == "" {
				return errors.New("no database: pass --mongo-uri or set MONGO_URI")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			store, err := storage.OpenMongo(ctx, uri, db)
			if err != nil {
				return err
			}
			defer store.Close(context.Background())
			return verifyLog(ctx, cmd, store)
		},
	}
	verify.Flags().StringVar(&uri, "mongo-uri", "", "MongoDB connection string (default $MONGO_URI)")
	verify.Flags().StringVar(&db, "db", "lifelockr", "database name")

	cmd.AddCommand(verify)
	return cmd
}

func verifyLog(ctx context.Context, cmd *cobra.Command, v audit.Verifier) error {
	if err := v.Verify(ctx); err != nil {
		if errors.Is(err, audit.ErrChainBroken) {
			fmt.Fprintln(cmd.OutOrStdout(), color.RedString("✗")+" activity log has been altered: "+err.Error())
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓")+" activity log chain intact")
	return nil
}
