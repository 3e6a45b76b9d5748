package main

import (
	"context"
	"os"

	"github.com/kashguard/go-sphinx-relay/internal/lightning"
	"github.com/kashguard/go-sphinx-relay/internal/payments"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newKeysendCmd(withApp runner) *cobra.Command {
	var (
		opts  payments.KeysendOpts
		owner string
	)
	cmd := &cobra.Command{
		Use:   "keysend",
		Short: "Send a message payment, woven into chunks when large",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			res, err := a.weaver.KeysendMessage(ctx, opts, owner)
			if err != nil {
				return err
			}
			return printJSON(res)
		}),
	}
	cmd.Flags().StringVar(&opts.Dest, "dest", "", "Destination pubkey (66 hex chars)")
	cmd.Flags().Int64Var(&opts.Amt, "amt", 0, "Amount in sats")
	cmd.Flags().StringVar(&opts.Data, "data", "", "Message payload")
	cmd.Flags().StringVar(&opts.RouteHint, "route-hint", "", "nodeId:chanId")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner pubkey for proxied nodes")
	_ = cmd.MarkFlagRequired("dest")
	return cmd
}

func newPayCmd(withApp runner) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "pay <bolt11>",
		Short: "Pay an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			res, err := a.payments.PayInvoice(ctx, args[0], owner)
			if err != nil {
				return err
			}
			return printJSON(res)
		}),
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner pubkey for proxied nodes")
	return cmd
}

func newNodeCmd(withApp runner) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Node and channel introspection",
	}
	cmd.PersistentFlags().StringVar(&owner, "owner", "", "Owner pubkey for proxied nodes")

	info := &cobra.Command{
		Use: "info",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			res, err := a.payments.GetInfo(ctx, owner)
			if err != nil {
				return err
			}
			return printJSON(res)
		}),
	}
	channels := &cobra.Command{
		Use: "channels",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			res, err := a.payments.ListChannels(ctx, owner)
			if err != nil {
				return err
			}
			return printJSON(res)
		}),
	}
	peers := &cobra.Command{
		Use: "peers",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			res, err := a.payments.ListPeers(ctx, owner)
			if err != nil {
				return err
			}
			return printJSON(res)
		}),
	}
	balance := &cobra.Command{
		Use: "balance",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			res, err := a.payments.ChannelBalance(ctx, owner)
			if err != nil {
				return err
			}
			if res == nil {
				return lightning.NewError(lightning.KindUnsupported, "channel balance", nil)
			}
			return printJSON(res)
		}),
	}
	pending := &cobra.Command{
		Use: "pending",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			res, err := a.payments.PendingChannels(ctx, owner)
			if err != nil {
				return err
			}
			return printJSON(res)
		}),
	}
	connect := &cobra.Command{
		Use:  "connect <pubkey> <host>",
		Args: cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			return a.payments.ConnectPeer(ctx, args[0], args[1], owner)
		}),
	}
	route := &cobra.Command{
		Use:  "route <pubkey> <amt>",
		Args: cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			amt, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			res, err := a.payments.QueryRoute(ctx, args[0], amt, "", owner)
			if err != nil {
				return err
			}
			return printJSON(res)
		}),
	}

	var openReq lightning.OpenChannelRequest
	open := &cobra.Command{
		Use:  "open <pubkey>",
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			openReq.NodePubkey = args[0]
			point, err := a.payments.OpenChannel(ctx, &openReq, owner)
			if err != nil {
				return err
			}
			if point == "" {
				return lightning.NewError(lightning.KindUnsupported, "open channel", nil)
			}
			return printJSON(map[string]string{"channel_point": point})
		}),
	}
	open.Flags().Int64Var(&openReq.LocalAmt, "local-amt", 0, "Funding amount in sats")
	open.Flags().Int64Var(&openReq.PushAmt, "push-amt", 0, "Sats pushed to the peer")
	open.Flags().Uint64Var(&openReq.SatPerVbyte, "sat-per-vbyte", 0, "Fee rate")
	open.Flags().BoolVar(&openReq.Private, "private", false, "Do not announce the channel")

	var memo string
	invoice := &cobra.Command{
		Use:  "invoice <amt>",
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			amt, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			res, err := a.payments.AddInvoice(ctx, memo, amt, owner)
			if err != nil {
				return err
			}
			return printJSON(res)
		}),
	}
	invoice.Flags().StringVar(&memo, "memo", "", "Invoice memo")

	cmd.AddCommand(info, channels, peers, balance, pending, connect, route, open, invoice)
	return cmd
}

func newHistoryCmd(withApp runner) *cobra.Command {
	var (
		owner string
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Invoice and payment history",
	}
	cmd.PersistentFlags().StringVar(&owner, "owner", "", "Owner pubkey for proxied nodes")

	invoices := &cobra.Command{
		Use: "invoices",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			var (
				res []lightning.Invoice
				err error
			)
			if all {
				res, err = a.payments.ListAllInvoices(ctx, owner)
			} else {
				res, err = a.payments.ListInvoices(ctx, owner)
			}
			if err != nil {
				return err
			}
			return printJSON(res)
		}),
	}
	invoices.Flags().BoolVar(&all, "all", false, "Walk the full history in pages")

	paymentsCmd := &cobra.Command{
		Use: "payments",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			res, err := a.payments.ListAllPayments(ctx, owner)
			if err != nil {
				return err
			}
			return printJSON(res)
		}),
	}

	cmd.AddCommand(invoices, paymentsCmd)
	return cmd
}

func newUnlockCmd(withApp runner) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Unlock the node wallet with RELAY_WALLET_PASSWORD",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			password := os.Getenv("RELAY_WALLET_PASSWORD")
			if password == "" {
				return errors.New("RELAY_WALLET_PASSWORD is not set")
			}
			return a.clients.UnlockWallet(ctx, []byte(password))
		}),
	}
}
