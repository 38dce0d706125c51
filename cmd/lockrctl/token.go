package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"lifelockr/internal/auth"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	token := &cobra.Command{
		Use:   "token",
		Short: "Work with issued session and emergency tokens",
	}

	var secret, issuer string
	inspect := &cobra.Command{
		Use:   "inspect <jwt>",
		Short: "Verify a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("no signing secret: pass --secret or set JWT_SECRET")
			}
			ti, err := auth.NewTokenIssuer([]byte(secret), issuer)
			if err != nil {
				return err
			}
			claims, err := ti.Verify(args[0])
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				fmt.Fprintln(cmd.OutOrStdout(), color.YellowString("expired"))
				return err
			case err != nil:
				fmt.Fprintln(cmd.OutOrStdout(), color.RedString("invalid"))
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("valid"))
			b, err := json.MarshalIndent(claims, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			fmt.Fprintf(cmd.OutOrStdout(), "expires in %s\n", time.Until(time.Unix(claims.ExpiresAt, 0)).Round(time.Second))
			return nil
		},
	}
	inspect.Flags().StringVar(&secret, "secret", "", "token signing secret (default $JWT_SECRET)")
	inspect.Flags().StringVar(&issuer, "issuer", "lifelockr", "expected issuer")

	token.AddCommand(inspect)
	return token
}
