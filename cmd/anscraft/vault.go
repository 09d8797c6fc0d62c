package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vsantiago113/AnsibleCraft/pkg/config"
	"github.com/vsantiago113/AnsibleCraft/pkg/vault"
)

func newVaultCmd() *cobra.Command {
	var passFile string
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "encrypt and decrypt secret files",
	}
	cmd.PersistentFlags().StringVar(&passFile, "vault-password-file", "", "file holding the vault passphrase")

	cmd.AddCommand(&cobra.Command{
		Use:   "encrypt FILE",
		Short: "encrypt a file in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return vaultRewrite(args[0], passFile, vault.Encrypt)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "decrypt FILE",
		Short: "decrypt a file in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return vaultRewrite(args[0], passFile, vault.Decrypt)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "view FILE",
		Short: "print a decrypted file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			pass, err := vaultPass(passFile)
			if err != nil {
				return err
			}
			plain, err := vault.Decrypt(data, pass)
			if err != nil {
				return err
			}
			os.Stdout.Write(plain) //nolint:errcheck
			return nil
		},
	})
	return cmd
}

func vaultRewrite(path, passFile string, op func([]byte, []byte) ([]byte, error)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	pass, err := vaultPass(passFile)
	if err != nil {
		return err
	}
	out, err := op(data, pass)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// vaultPass resolves the passphrase: explicit file flag, then the
// configured sources, then an interactive prompt.
func vaultPass(passFile string) ([]byte, error) {
	if passFile != "" {
		cfg := config.Default()
		cfg.VaultPasswordFile = passFile
		return cfg.VaultPassword()
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if pass, err := cfg.VaultPassword(); err != nil || pass != nil {
		return pass, err
	}
	fmt.Fprint(os.Stderr, "Vault password: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return pass, err
}
