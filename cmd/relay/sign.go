package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newSignCmd(withApp runner) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "sign <text>",
		Short: "Sign text with the node identity key",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			sig, err := a.signer.SignASCII(ctx, args[0], owner)
			if err != nil {
				return err
			}
			return printJSON(map[string]string{"sig": sig})
		}),
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner pubkey for proxied nodes")
	return cmd
}

func newVerifyCmd(withApp runner) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <text> <sig>",
		Short: "Recover the signer of text",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			res, err := a.signer.VerifyASCII(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(res)
		}),
	}
}
