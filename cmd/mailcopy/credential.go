package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pepperpark/mailcopy/internal/credential"
	"github.com/pepperpark/mailcopy/internal/mailstore"
)

func newCredentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage IMAP passwords stored in the system keyring",
	}
	cmd.AddCommand(&cobra.Command{
		Use:          "set URL",
		Short:        "Store the password for the account in URL (prompted if not in the URL)",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, creds, err := credentialTarget(args[0])
			if err != nil {
				return err
			}
			pw := ep.Password
			if pw == "" {
				if pw, err = promptPassword(fmt.Sprintf("Password for %s: ", ep.CredentialKey())); err != nil {
					return err
				}
			}
			if err := creds.Set(ep, pw); err != nil {
				return err
			}
			fmt.Printf("Stored password for %s\n", ep.CredentialKey())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:          "delete URL",
		Short:        "Remove the stored password for the account in URL",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, creds, err := credentialTarget(args[0])
			if err != nil {
				return err
			}
			if err := creds.Delete(ep); err != nil {
				return err
			}
			fmt.Printf("Deleted password for %s\n", ep.CredentialKey())
			return nil
		},
	})
	return cmd
}

func credentialTarget(raw string) (*mailstore.Endpoint, *credential.Store, error) {
	ep, err := mailstore.ParseURL(raw)
	if err != nil {
		return nil, nil, err
	}
	if ep.Scheme == mailstore.SchemeMbox {
		return nil, nil, fmt.Errorf("%s: mbox stores have no credentials", ep)
	}
	if ep.User == "" {
		return nil, nil, fmt.Errorf("%s: missing user name", ep)
	}
	creds, err := credential.Open()
	if err != nil {
		return nil, nil, err
	}
	return ep, creds, nil
}
