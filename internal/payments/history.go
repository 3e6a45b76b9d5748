package payments

import (
	"context"

	"github.com/kashguard/go-sphinx-relay/internal/lightning"
	"github.com/rs/zerolog/log"
)

// ListInvoices 获取一大页发票，最新在前
func (s *Service) ListInvoices(ctx context.Context, owner string) ([]lightning.Invoice, error) {
	node, err := s.node(ctx, owner)
	if err != nil {
		return nil, err
	}
	page, err := node.ListInvoicesPage(ctx, 0, s.cfg.InvoiceListPageSize)
	if err != nil {
		return nil, err
	}
	return page.Invoices, nil
}

// ListAllInvoices 逐页倒序遍历发票历史
// A failing page ends the walk and whatever was collected is returned without
// error.
func (s *Service) ListAllInvoices(ctx context.Context, owner string) ([]lightning.Invoice, error) {
	node, err := s.node(ctx, owner)
	if err != nil {
		return nil, err
	}

	var (
		all    []lightning.Invoice
		offset uint64
	)
	for {
		page, err := node.ListInvoicesPage(ctx, offset, s.cfg.HistoryPageSize)
		if err != nil {
			log.Warn().Err(err).Uint64("offset", offset).Int("collected", len(all)).Msg("Invoice history truncated")
			return all, nil
		}
		all = append(all, page.Invoices...)
		if page.FirstIndexOffset == 0 || len(page.Invoices) == 0 {
			return all, nil
		}
		offset = page.FirstIndexOffset
	}
}

// ListAllPayments 逐页倒序遍历支付历史
func (s *Service) ListAllPayments(ctx context.Context, owner string) ([]lightning.Payment, error) {
	node, err := s.node(ctx, owner)
	if err != nil {
		return nil, err
	}

	var (
		all    []lightning.Payment
		offset uint64
	)
	for {
		page, err := node.ListPaymentsPage(ctx, offset, s.cfg.HistoryPageSize)
		if err != nil {
			log.Warn().Err(err).Uint64("offset", offset).Int("collected", len(all)).Msg("Payment history truncated")
			return all, nil
		}
		all = append(all, page.Payments...)
		if page.FirstIndexOffset == 0 || len(page.Payments) == 0 {
			return all, nil
		}
		offset = page.FirstIndexOffset
	}
}
