package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	cr "lifelockr/internal/crypto"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newEncryptCmd() *cobra.Command {
	var keyHex string
	cmd := &cobra.Command{
		Use:   "encrypt [plaintext]",
		Short: "Encrypt a value (argument or stdin) with DATA_ENC_KEY",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cipherFrom(keyHex)
			if err != nil {
				return err
			}
			in, err := input(cmd, args)
			if err != nil {
				return err
			}
			enc, err := c.Encrypt(in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "hex data key (default $DATA_ENC_KEY)")
	return cmd
}

func newDecryptCmd() *cobra.Command {
	var keyHex string
	cmd := &cobra.Command{
		Use:   "decrypt [iv:authTag:ciphertext]",
		Short: "Decrypt a stored value (argument or stdin) with DATA_ENC_KEY",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cipherFrom(keyHex)
			if err != nil {
				return err
			}
			in, err := input(cmd, args)
			if err != nil {
				return err
			}
			pt, err := c.Decrypt(strings.TrimSpace(in))
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), color.RedString("✗")+" value failed authentication; it was tampered with or encrypted under another key")
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pt)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "hex data key (default $DATA_ENC_KEY)")
	return cmd
}

func cipherFrom(keyHex string) (*cr.Cipher, error) {
	if keyHex == "" {
		keyHex = os.Getenv("DATA_ENC_KEY")
	}
	if keyHex == "" {
		return nil, errors.New("no data key: pass --key or set DATA_ENC_KEY")
	}
	key, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return nil, errors.New("data key is not hex")
	}
	defer cr.Zero(key)
	return cr.NewCipher(key)
}

func input(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	b, err := io.ReadAll(bufio.NewReader(cmd.InOrStdin()))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}
