package main

import (
	"context"
	"strings"

	"github.com/kashguard/go-sphinx-relay/internal/ldat"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newTokenCmd(withApp runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Build, parse and verify LDAT media tokens",
	}

	var (
		terms ldat.Terms
		meta  []string
		owner string
	)
	build := &cobra.Command{
		Use:   "build",
		Short: "Build a token, signed when --pubkey is set",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			m, err := parseMeta(meta)
			if err != nil {
				return err
			}
			terms.Meta = m
			token, err := a.tokens.Build(ctx, terms, owner)
			if err != nil {
				return err
			}
			return printJSON(map[string]string{"token": token})
		}),
	}
	build.Flags().StringVar(&terms.Host, "host", "", "Media host (defaults to media.host)")
	build.Flags().StringVar(&terms.MediaID, "media-id", "", "Base64 media id")
	build.Flags().StringVar(&terms.Pubkey, "pubkey", "", "Requester pubkey (hex)")
	build.Flags().Int64Var(&terms.TTL, "ttl", 0, "Request an expiry")
	build.Flags().StringArrayVar(&meta, "meta", nil, "Metadata key=value, repeatable")
	build.Flags().StringVar(&owner, "owner", "", "Owner pubkey for proxied nodes")

	parse := &cobra.Command{
		Use:   "parse <token>",
		Short: "Decode a token without verifying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ldat.Parse(args[0])
			if err != nil {
				return err
			}
			return printJSON(t)
		},
	}

	verify := &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a token signature and expiry",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			t, err := a.tokens.Verify(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(t)
		}),
	}

	cmd.AddCommand(build, parse, verify)
	return cmd
}

func parseMeta(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]interface{}, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, errors.Errorf("meta %q is not key=value", p)
		}
		meta[k] = v
	}
	return meta, nil
}
