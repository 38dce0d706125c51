package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	cr "lifelockr/internal/crypto"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh DATA_ENC_KEY and JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataKey := make([]byte, cr.KeySize)
			secret := make([]byte, 32)
			defer cr.Zero(dataKey)
			defer cr.Zero(secret)
			if _, err := rand.Read(dataKey); err != nil {
				return err
			}
			if _, err := rand.Read(secret); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "DATA_ENC_KEY=%s\n", hex.EncodeToString(dataKey))
			fmt.Fprintf(out, "JWT_SECRET=%s\n", hex.EncodeToString(secret))
			fmt.Fprintln(cmd.ErrOrStderr(), color.YellowString("!")+" store these in your secret manager; losing DATA_ENC_KEY makes stored items unreadable")
			return nil
		},
	}
}
