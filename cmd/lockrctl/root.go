package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lockrctl",
		Short: "lockrctl - operator tooling for LifeLockr key material and tokens.",
		Long: `lockrctl generates key material, encrypts and decrypts single values in the
iv:authTag:ciphertext format used at rest, and inspects issued tokens.

Key material is read from flags or from DATA_ENC_KEY and JWT_SECRET.
`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newKeygenCmd(), newEncryptCmd(), newDecryptCmd(), newTokenCmd(), newAuditCmd())
	return root
}
