package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"kedaipos/backend/internal/checkout"
	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/xid"
)

const receiptTimeLayout = "20060102150405"

// saleRecorder turns a tender into a persisted sale: one sale document, one
// stock decrement and one "sold" history entry per cart line, committed as a
// single unit.
func (s *Service) saleRecorder(sess *Session, customerName string) checkout.Recorder {
	return checkout.RecorderFunc(func(ctx context.Context, tender checkout.Tender) (*domain.Sale, error) {
		actor := sess.Actor
		now := s.now().In(s.loc)
		receipt := s.receiptNumber(ctx, actor.BusinessID, now)

		sale := domain.Sale{
			ID:            xid.New("sale"),
			BusinessID:    actor.BusinessID,
			ReceiptNumber: receipt,
			Items:         make([]domain.SaleItem, 0, len(tender.Lines)),
			Subtotal:      tender.Totals.Subtotal,
			Tax:           tender.Totals.Tax,
			Total:         tender.Totals.Total,
			AmountPaid:    tender.AmountPaid,
			Change:        tender.Change,
			PaymentMethod: tender.PaymentMethod,
			BranchID:      sess.BranchID,
			BranchName:    sess.BranchName,
			SoldBy:        actor.ID,
			SoldByName:    actor.Name,
			CustomerName:  customerName,
			SoldAt:        now.UTC(),
			Date:          now.Format(domain.DateLayout),
		}
		commit := store.SaleCommit{
			StockChanges: make([]domain.StockChange, 0, len(tender.Lines)),
			History:      make([]domain.StockHistoryEntry, 0, len(tender.Lines)),
		}

		for _, line := range tender.Lines {
			sale.Items = append(sale.Items, domain.SaleItem{
				ProductID:   line.ProductID,
				ProductName: line.Name,
				SKU:         line.SKU,
				Unit:        line.Unit,
				SellPrice:   line.SellPrice,
				CostPrice:   line.CostPrice,
				TaxRate:     line.TaxRate,
				Quantity:    line.Quantity,
				Subtotal:    line.Subtotal(),
				Tax:         line.Tax(),
			})
			commit.StockChanges = append(commit.StockChanges, domain.StockChange{ProductID: line.ProductID, Quantity: line.Quantity})
			// The store labels the stock transition from the level it reads
			// under its lock.
			commit.History = append(commit.History, domain.StockHistoryEntry{
				ID:         xid.New("hist"),
				BusinessID: actor.BusinessID,
				ProductID:  line.ProductID,
				Action:     domain.StockSold,
				Actor:      actor.ID,
				Note:       "Sale #" + receipt,
				Timestamp:  sale.SoldAt,
			})
		}
		commit.Sale = sale

		saved, err := s.repo.CommitSale(ctx, commit)
		if err != nil {
			s.metrics.CommitFailed()
			if !errors.Is(err, store.ErrInsufficientStock) {
				s.logger.Error("commit sale",
					zap.String("businessId", actor.BusinessID),
					zap.String("branchId", sess.BranchID),
					zap.String("saleId", sale.ID),
					zap.Error(err))
			}
			return nil, err
		}

		s.metrics.SaleCompleted(string(saved.PaymentMethod), saved.Total)
		s.logAudit(ctx, "sale_complete", "sale", saved.ID,
			zap.String("receipt", saved.ReceiptNumber),
			zap.String("total", saved.Total.String()),
			zap.String("paymentMethod", string(saved.PaymentMethod)))
		return saved, nil
	})
}

// receiptNumber is YYYYMMDDHHMMSS plus a three digit daily sequence. It is a
// display label; the sale ID is the unique key.
func (s *Service) receiptNumber(ctx context.Context, businessID string, at time.Time) string {
	key := fmt.Sprintf("receipt:%s:%s", businessID, at.Format("20060102"))
	n, err := s.counter.Next(ctx, key)
	if err != nil {
		s.logger.Warn("receipt counter unavailable, using random suffix", zap.String("businessId", businessID), zap.Error(err))
		n = rand.Int64N(1000)
	}
	return fmt.Sprintf("%s%03d", at.Format(receiptTimeLayout), n%1000)
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.GetSale(ctx, actor.BusinessID, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if actor.Role != domain.RoleOwner && sale.BranchID != actor.BranchID {
		return domain.Sale{}, store.ErrNotFound
	}
	return *sale, nil
}
