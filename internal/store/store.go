package store

import (
	"context"
	"errors"
	"time"

	"tillpoint/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrState             = errors.New("invalid state")
	ErrConflict          = errors.New("transaction conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnauthorized      = errors.New("unauthorized")
)

// VoidResult carries the sale after voiding plus the per-product stock
// restorations the transaction applied, for logging.
type VoidResult struct {
	Sale     *domain.Sale
	Restored map[string]int
}

// ReturnResult mirrors VoidResult for item returns and adds the refund
// value computed inside the transaction.
type ReturnResult struct {
	Sale        *domain.Sale
	Restored    map[string]int
	RefundCents int64
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, update domain.ProductUpdateRequest) (*domain.Product, error)

	// CreateSale decrements stock for every merchandise line and inserts
	// the sale in one transaction. Non-merchandise entries (withdrawal,
	// airtime, electricity, voucher) pass no items and touch no stock.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	ListSalesByOperatorBetween(ctx context.Context, operatorID string, from time.Time, to time.Time) ([]domain.Sale, error)

	// VoidSale restores remaining stock for every item, flips status to
	// voided and appends the authorization record, atomically.
	VoidSale(ctx context.Context, saleID string, auth domain.AuthorizationRecord) (*VoidResult, error)
	// ReturnItems increments returned quantities, restores stock and
	// recomputes status, atomically. Over-returns reject the whole call.
	ReturnItems(ctx context.Context, saleID string, lines []domain.ReturnLine, auth domain.AuthorizationRecord) (*ReturnResult, error)

	// StartTillSession enforces at most one active session per operator.
	StartTillSession(ctx context.Context, session domain.TillSession) (*domain.TillSession, error)
	// EndTillSession computes expected cash from the session's own cash
	// sales and closes it in the same transaction.
	EndTillSession(ctx context.Context, sessionID string, countedCashCents int64, closedAt time.Time) (*domain.TillSession, error)
	GetActiveTillSession(ctx context.Context, operatorID string) (*domain.TillSession, error)
	ListTillSessions(ctx context.Context, limit int) ([]domain.TillSession, error)

	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}
