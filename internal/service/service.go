package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"modalku/backend/internal/domain"
	"modalku/backend/internal/ledger"
	"modalku/backend/internal/money"
	"modalku/backend/internal/store"
	"modalku/backend/internal/xid"
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service is the sale recorder and capital-entry flow in front of the
// allocation engine.
type Service struct {
	repo           store.Repository
	engine         *ledger.Engine
	calc           *ledger.Calculator
	formatter      *money.Formatter
	logger         *zap.Logger
	defaultStoreID string
}

func New(repo store.Repository, engine *ledger.Engine, defaultStoreID string, formatter *money.Formatter, logger *zap.Logger) *Service {
	if defaultStoreID == "" {
		defaultStoreID = "main-store"
	}
	if formatter == nil {
		formatter = money.NewFormatter("id")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:           repo,
		engine:         engine,
		calc:           ledger.NewCalculator(repo, logger),
		formatter:      formatter,
		logger:         logger,
		defaultStoreID: defaultStoreID,
	}
}

// RecordSale posts a stock-out sale. Credit-mode products with a known cost
// also get a payable entry, settled against any unspent capital.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	req.StoreID = defaultString(req.StoreID, s.defaultStoreID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" || req.Qty <= 0 || req.UnitPrice < 0 {
		return domain.SaleResponse{}, store.ErrInvalidTransaction
	}
	if req.CostPrice != nil && *req.CostPrice < 0 {
		return domain.SaleResponse{}, ledger.ErrInvalidAmount
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if product.StoreID != req.StoreID {
		return domain.SaleResponse{}, ledger.ErrStoreMismatch
	}

	cost := product.CostPrice
	if req.CostPrice != nil {
		cost = req.CostPrice
	}
	skipReason := ledgerSkipReason(*product, cost)
	var amount int64
	if skipReason == "" {
		if *cost > math.MaxInt64/req.Qty {
			return domain.SaleResponse{}, ledger.ErrInvalidAmount
		}
		amount = req.Qty * *cost
	}

	sale, err := s.repo.CreateTransaction(ctx, domain.Transaction{
		ID:        xid.New("trx"),
		StoreID:   req.StoreID,
		ProductID: product.ID,
		Qty:       req.Qty,
		UnitPrice: req.UnitPrice,
		Total:     req.Qty * req.UnitPrice,
		Kind:      domain.TxKindStockOut,
		Note:      strings.TrimSpace(req.Note),
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	resp := domain.SaleResponse{Transaction: *sale, Ledger: domain.LedgerSkipped, SkipReason: skipReason}
	if skipReason != "" {
		s.logger.Warn("sale recorded without payable entry",
			zap.String("store_id", sale.StoreID),
			zap.String("transaction_id", sale.ID),
			zap.String("product_id", product.ID),
			zap.String("reason", skipReason))
		resp.Confirmation = "Penjualan " + product.Name + " dicatat tanpa hutang (" + skipReason + ")\n"
	} else {
		debt, err := s.engine.RecordDebt(ctx, ledger.DebtInput{
			TransactionID: sale.ID,
			ProductID:     product.ID,
			Item:          product.Name,
			Qty:           req.Qty,
			CostPrice:     *cost,
			Amount:        amount,
			StoreID:       sale.StoreID,
		})
		if err != nil {
			if delErr := s.repo.DeleteTransaction(context.WithoutCancel(ctx), sale.ID); delErr != nil {
				s.logger.Error("remove sale after failed debt",
					zap.String("transaction_id", sale.ID),
					zap.Error(delErr))
			}
			return domain.SaleResponse{}, err
		}
		resp.Ledger = domain.LedgerRecorded
		resp.Debt = &debt
		resp.Confirmation = ledger.RenderDebt(s.formatter, debt)
	}

	balance, err := s.calc.GetBalance(ctx, sale.StoreID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	resp.Balance = balance

	s.logger.Info("sale recorded",
		zap.String("store_id", sale.StoreID),
		zap.String("transaction_id", sale.ID),
		zap.String("actor", actorName(ctx)),
		zap.String("ledger", resp.Ledger))
	return resp, nil
}

// RecordCapital applies a capital contribution typed by the operator.
func (s *Service) RecordCapital(ctx context.Context, req domain.CapitalRequest) (domain.CapitalResponse, error) {
	req.StoreID = defaultString(req.StoreID, s.defaultStoreID)
	amount, err := money.Parse(req.Amount)
	if err != nil {
		return domain.CapitalResponse{}, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}

	raw := req.Raw
	if strings.TrimSpace(raw) == "" {
		raw = req.Amount
	}
	result, err := s.engine.ApplyPayment(ctx, ledger.PaymentInput{
		StoreID: req.StoreID,
		Amount:  amount,
		Note:    req.Note,
		Sender:  defaultString(req.Sender, actorName(ctx)),
		Raw:     raw,
	})
	if err != nil {
		return domain.CapitalResponse{}, err
	}

	balance, err := s.calc.GetBalance(ctx, req.StoreID)
	if err != nil {
		return domain.CapitalResponse{}, err
	}

	return domain.CapitalResponse{
		Payment:      result,
		Confirmation: ledger.RenderPayment(s.formatter, result),
		Balance:      balance,
	}, nil
}

func (s *Service) VoidSale(ctx context.Context, transactionID string) (domain.VoidResult, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.VoidResult{}, ErrForbidden
	}

	result, err := s.engine.VoidSale(ctx, transactionID)
	if err != nil {
		return domain.VoidResult{}, err
	}
	s.logger.Info("sale voided by operator",
		zap.String("transaction_id", result.TransactionID),
		zap.String("actor", actor.Username))
	return result, nil
}

func (s *Service) GetBalance(ctx context.Context, storeID string) (domain.Balance, error) {
	return s.calc.GetBalance(ctx, defaultString(storeID, s.defaultStoreID))
}

func (s *Service) ListEntries(ctx context.Context, storeID string, openOnly bool) ([]domain.Entry, error) {
	return s.calc.ListEntries(ctx, defaultString(storeID, s.defaultStoreID), openOnly)
}

func (s *Service) ListPayments(ctx context.Context, storeID string, openOnly bool) ([]domain.Payment, error) {
	return s.calc.ListPayments(ctx, defaultString(storeID, s.defaultStoreID), openOnly)
}

func (s *Service) ListAllocations(ctx context.Context, filter store.AllocationFilter) ([]domain.Allocation, error) {
	filter.StoreID = defaultString(filter.StoreID, s.defaultStoreID)
	return s.calc.ListAllocations(ctx, filter)
}

func (s *Service) Verify(ctx context.Context, storeID string) (domain.VerifyReport, error) {
	return s.calc.Verify(ctx, defaultString(storeID, s.defaultStoreID))
}

func (s *Service) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, defaultString(storeID, s.defaultStoreID))
}

func ledgerSkipReason(product domain.Product, cost *int64) string {
	if product.PayableMode != domain.PayableModeCredit {
		return "produk mode tunai"
	}
	if cost == nil || *cost <= 0 {
		return "harga modal belum diisi"
	}
	return ""
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return ""
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
