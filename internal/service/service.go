package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"tillpoint/backend/internal/cache"
	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/payment"
	"tillpoint/backend/internal/report"
	"tillpoint/backend/internal/reorder"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Identity) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Identity, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Identity)
	return actor, ok
}

const (
	cashUpCacheKey  = "tillpoint:report:cashup"
	reorderCacheKey = "tillpoint:report:reorder"

	reorderWindowDays = 30
)

// Options carries the tunables the service reads from configuration.
type Options struct {
	CardMinCents       int64
	CardMaxCents       int64
	IncludeWithdrawals bool
	ReportTTL          time.Duration
}

type Service struct {
	repo     store.Repository
	terminal payment.Terminal
	reports  cache.ReportCache
	opts     Options
}

func New(repo store.Repository, terminal payment.Terminal, reports cache.ReportCache, opts Options) *Service {
	if opts.CardMinCents < 1 {
		opts.CardMinCents = 100
	}
	if opts.CardMaxCents <= opts.CardMinCents {
		opts.CardMaxCents = 10_000_000
	}
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = 30 * time.Second
	}
	if terminal == nil {
		terminal = payment.ManualTerminal{}
	}
	if reports == nil {
		reports = cache.NoopReportCache{}
	}

	return &Service{repo: repo, terminal: terminal, reports: reports, opts: opts}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdministration(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Category == "" {
		return domain.Product{}, fmt.Errorf("%w: name and category required", store.ErrValidation)
	}
	if req.PriceCents < 1 || req.InitialStock < 0 || req.LowStockThreshold < 0 {
		return domain.Product{}, fmt.Errorf("%w: price must be positive, stock and threshold non-negative", store.ErrValidation)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:                xid.New("prod"),
		Name:              req.Name,
		Category:          req.Category,
		PriceCents:        req.PriceCents,
		Stock:             req.InitialStock,
		LowStockThreshold: req.LowStockThreshold,
		Active:            true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateReports(ctx)
	log.Info().Str("product_id", created.ID).Str("name", created.Name).Int64("price_cents", created.PriceCents).Msg("product created")
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdministration(ctx); err != nil {
		return domain.Product{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, fmt.Errorf("%w: product id required", store.ErrValidation)
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return domain.Product{}, fmt.Errorf("%w: name cannot be blank", store.ErrValidation)
	}

	updated, err := s.repo.UpdateProduct(ctx, id, req)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateReports(ctx)
	log.Info().Str("product_id", updated.ID).Bool("active", updated.Active).Msg("product updated")
	return *updated, nil
}

// CreateSale validates the cart and payment up front, then hands the
// store one atomic append: the transaction re-reads prices and stock under
// lock, so the numbers here are advisory and the commit is authoritative.
func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.Sale, error) {
	if len(req.Lines) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: sale has no items", store.ErrValidation)
	}
	if req.Operator.ID == "" || req.Operator.Name == "" {
		return domain.Sale{}, fmt.Errorf("%w: operator required", store.ErrValidation)
	}
	if req.TaxRatePercent < 0 || req.TaxRatePercent > 100 {
		return domain.Sale{}, fmt.Errorf("%w: tax rate out of range", store.ErrValidation)
	}
	if !validPaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, fmt.Errorf("%w: unknown payment method %q", store.ErrValidation, req.PaymentMethod)
	}

	lines, err := mergeLines(req.Lines)
	if err != nil {
		return domain.Sale{}, err
	}

	// Advisory pricing pass for the card bounds and terminal amount.
	var estimatedSubtotal int64
	items := make([]domain.SaleItem, 0, len(lines))
	for _, line := range lines {
		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			return domain.Sale{}, err
		}
		if !product.Active {
			return domain.Sale{}, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}
		estimatedSubtotal += product.PriceCents * int64(line.Quantity)
		items = append(items, domain.SaleItem{
			ProductID:      product.ID,
			Name:           product.Name,
			UnitPriceCents: product.PriceCents,
			Quantity:       line.Quantity,
		})
	}
	estimatedTotal := estimatedSubtotal + domain.TaxCentsFor(estimatedSubtotal, req.TaxRatePercent)

	reference := strings.TrimSpace(req.PaymentReference)
	switch req.PaymentMethod {
	case domain.PaymentMethodCash:
		if req.AmountPaidCents < estimatedTotal {
			return domain.Sale{}, fmt.Errorf("%w: amount paid is below total", store.ErrValidation)
		}
	case domain.PaymentMethodCard:
		if estimatedTotal < s.opts.CardMinCents || estimatedTotal > s.opts.CardMaxCents {
			return domain.Sale{}, fmt.Errorf("%w: card amount outside %d..%d cents", store.ErrValidation, s.opts.CardMinCents, s.opts.CardMaxCents)
		}
		if reference == "" {
			reference, err = s.terminal.Charge(ctx, estimatedTotal)
			if err != nil {
				return domain.Sale{}, err
			}
		}
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		ID:               xid.New("sale"),
		Date:             time.Now().UTC(),
		Type:             domain.SaleTypeSale,
		Status:           domain.SaleStatusCompleted,
		PaymentMethod:    req.PaymentMethod,
		TaxRatePercent:   req.TaxRatePercent,
		AmountPaidCents:  req.AmountPaidCents,
		PaymentReference: reference,
		OperatorID:       req.Operator.ID,
		OperatorName:     req.Operator.Name,
		Items:            items,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateReports(ctx)
	log.Info().Str("sale_id", created.ID).Str("operator_id", created.OperatorID).
		Int64("total_cents", created.TotalCents).Str("payment_method", created.PaymentMethod).
		Msg("sale recorded")
	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: empty date range", store.ErrValidation)
	}
	return s.repo.ListSalesBetween(ctx, from, to)
}

func (s *Service) ListSalesByOperator(ctx context.Context, operatorID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return nil, fmt.Errorf("%w: operator id required", store.ErrValidation)
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: empty date range", store.ErrValidation)
	}
	return s.repo.ListSalesByOperatorBetween(ctx, operatorID, from, to)
}

// VoidSale cancels a whole sale. The identity comes from the authorization
// gate; the ledger only checks it is present and writes it to the trail.
func (s *Service) VoidSale(ctx context.Context, saleID string, identity domain.Identity, reason string) (domain.Sale, error) {
	if identity.IsZero() {
		return domain.Sale{}, fmt.Errorf("%w: authorization identity required", store.ErrUnauthorized)
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, fmt.Errorf("%w: sale id required", store.ErrValidation)
	}

	result, err := s.repo.VoidSale(ctx, saleID, domain.AuthorizationRecord{
		UserID:    identity.UserID,
		UserName:  identity.UserName,
		Timestamp: time.Now().UTC(),
		Action:    domain.AuthActionVoid,
		Details:   withDefault(reason, "Transaction voided"),
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateReports(ctx)
	log.Info().Str("sale_id", saleID).Str("authorized_by", identity.UserID).
		Interface("restocked", result.Restored).Msg("sale voided")
	return *result.Sale, nil
}

// ReturnItems accepts part or all of a sale back into stock and refunds
// the returned value plus its share of the tax.
func (s *Service) ReturnItems(ctx context.Context, saleID string, lines []domain.ReturnLine, identity domain.Identity) (domain.Sale, int64, error) {
	if identity.IsZero() {
		return domain.Sale{}, 0, fmt.Errorf("%w: authorization identity required", store.ErrUnauthorized)
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, 0, fmt.Errorf("%w: sale id required", store.ErrValidation)
	}
	if len(lines) == 0 {
		return domain.Sale{}, 0, fmt.Errorf("%w: no return lines", store.ErrValidation)
	}

	described := make([]string, 0, len(lines))
	for _, line := range lines {
		described = append(described, fmt.Sprintf("%dx %s", line.Quantity, line.ProductID))
	}

	result, err := s.repo.ReturnItems(ctx, saleID, lines, domain.AuthorizationRecord{
		UserID:    identity.UserID,
		UserName:  identity.UserName,
		Timestamp: time.Now().UTC(),
		Action:    domain.AuthActionReturn,
		Details:   "Returned: " + strings.Join(described, ", "),
	})
	if err != nil {
		return domain.Sale{}, 0, err
	}

	s.invalidateReports(ctx)
	log.Info().Str("sale_id", saleID).Str("authorized_by", identity.UserID).
		Int64("refund_cents", result.RefundCents).Str("status", result.Sale.Status).
		Msg("items returned")
	return *result.Sale, result.RefundCents, nil
}

// RecordWithdrawal appends a negative cash ledger entry for money taken
// out of the drawer. It needs a gate identity like a void does.
func (s *Service) RecordWithdrawal(ctx context.Context, req domain.WithdrawalRequest, identity domain.Identity) (domain.Sale, error) {
	if identity.IsZero() {
		return domain.Sale{}, fmt.Errorf("%w: authorization identity required", store.ErrUnauthorized)
	}
	if req.AmountCents < 1 {
		return domain.Sale{}, fmt.Errorf("%w: withdrawal amount must be positive", store.ErrValidation)
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return domain.Sale{}, fmt.Errorf("%w: withdrawal reason required", store.ErrValidation)
	}
	if req.Operator.ID == "" {
		return domain.Sale{}, fmt.Errorf("%w: operator required", store.ErrValidation)
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		ID:               xid.New("sale"),
		Date:             time.Now().UTC(),
		Type:             domain.SaleTypeWithdrawal,
		Status:           domain.SaleStatusWithdrawal,
		PaymentMethod:    domain.PaymentMethodCash,
		SubtotalCents:    -req.AmountCents,
		TotalCents:       -req.AmountCents,
		OperatorID:       req.Operator.ID,
		OperatorName:     req.Operator.Name,
		WithdrawalReason: req.Reason,
		Authorizations: []domain.AuthorizationRecord{{
			UserID:    identity.UserID,
			UserName:  identity.UserName,
			Timestamp: time.Now().UTC(),
			Action:    domain.AuthActionWithdrawal,
			Details:   req.Reason,
		}},
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateReports(ctx)
	log.Info().Str("sale_id", created.ID).Int64("amount_cents", req.AmountCents).
		Str("authorized_by", identity.UserID).Msg("cash withdrawal recorded")
	return *created, nil
}

func (s *Service) SellAirtime(ctx context.Context, req domain.AirtimeSaleRequest) (domain.Sale, error) {
	req.Network = strings.TrimSpace(req.Network)
	if req.Network == "" {
		return domain.Sale{}, fmt.Errorf("%w: network required", store.ErrValidation)
	}
	return s.createServiceEntry(ctx, serviceEntry{
		saleType:      domain.SaleTypeAirtime,
		amountCents:   req.AmountCents,
		paymentMethod: req.PaymentMethod,
		operator:      req.Operator,
		airtime:       &domain.AirtimeDetails{Network: req.Network},
	})
}

func (s *Service) SellElectricity(ctx context.Context, req domain.ElectricitySaleRequest) (domain.Sale, error) {
	req.MeterNumber = strings.TrimSpace(req.MeterNumber)
	req.Municipality = strings.TrimSpace(req.Municipality)
	if req.MeterNumber == "" || req.Municipality == "" {
		return domain.Sale{}, fmt.Errorf("%w: meter number and municipality required", store.ErrValidation)
	}
	return s.createServiceEntry(ctx, serviceEntry{
		saleType:      domain.SaleTypeElectricity,
		amountCents:   req.AmountCents,
		paymentMethod: req.PaymentMethod,
		operator:      req.Operator,
		electricity:   &domain.ElectricityDetails{MeterNumber: req.MeterNumber, Municipality: req.Municipality},
	})
}

func (s *Service) SellVoucher(ctx context.Context, req domain.VoucherSaleRequest) (domain.Sale, error) {
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		return domain.Sale{}, fmt.Errorf("%w: voucher code required", store.ErrValidation)
	}
	return s.createServiceEntry(ctx, serviceEntry{
		saleType:      domain.SaleTypeVoucher,
		amountCents:   req.AmountCents,
		paymentMethod: req.PaymentMethod,
		operator:      req.Operator,
		voucher:       &domain.VoucherDetails{Code: req.Code},
	})
}

type serviceEntry struct {
	saleType      string
	amountCents   int64
	paymentMethod string
	operator      domain.Operator
	airtime       *domain.AirtimeDetails
	electricity   *domain.ElectricityDetails
	voucher       *domain.VoucherDetails
}

// Airtime, electricity and voucher entries share the envelope: fixed
// amount, no items, no stock movement, tendered cash or card.
func (s *Service) createServiceEntry(ctx context.Context, entry serviceEntry) (domain.Sale, error) {
	if entry.amountCents < 1 {
		return domain.Sale{}, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}
	if entry.operator.ID == "" || entry.operator.Name == "" {
		return domain.Sale{}, fmt.Errorf("%w: operator required", store.ErrValidation)
	}
	if entry.paymentMethod != domain.PaymentMethodCash && entry.paymentMethod != domain.PaymentMethodCard {
		return domain.Sale{}, fmt.Errorf("%w: %s entries accept cash or card", store.ErrValidation, entry.saleType)
	}

	var reference string
	if entry.paymentMethod == domain.PaymentMethodCard {
		if entry.amountCents < s.opts.CardMinCents || entry.amountCents > s.opts.CardMaxCents {
			return domain.Sale{}, fmt.Errorf("%w: card amount outside %d..%d cents", store.ErrValidation, s.opts.CardMinCents, s.opts.CardMaxCents)
		}
		var err error
		reference, err = s.terminal.Charge(ctx, entry.amountCents)
		if err != nil {
			return domain.Sale{}, err
		}
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		ID:               xid.New("sale"),
		Date:             time.Now().UTC(),
		Type:             entry.saleType,
		Status:           domain.SaleStatusCompleted,
		PaymentMethod:    entry.paymentMethod,
		SubtotalCents:    entry.amountCents,
		TotalCents:       entry.amountCents,
		AmountPaidCents:  entry.amountCents,
		PaymentReference: reference,
		OperatorID:       entry.operator.ID,
		OperatorName:     entry.operator.Name,
		Airtime:          entry.airtime,
		Electricity:      entry.electricity,
		Voucher:          entry.voucher,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateReports(ctx)
	log.Info().Str("sale_id", created.ID).Str("type", created.Type).
		Int64("amount_cents", entry.amountCents).Msg("service entry recorded")
	return *created, nil
}

func (s *Service) StartTillSession(ctx context.Context, req domain.StartSessionRequest) (domain.TillSession, error) {
	if req.Operator.ID == "" || req.Operator.Name == "" {
		return domain.TillSession{}, fmt.Errorf("%w: operator required", store.ErrValidation)
	}
	if req.OpeningBalanceCents < 0 {
		return domain.TillSession{}, fmt.Errorf("%w: opening balance must be non-negative", store.ErrValidation)
	}

	session, err := s.repo.StartTillSession(ctx, domain.TillSession{
		ID:                  xid.New("till"),
		OperatorID:          req.Operator.ID,
		OperatorName:        req.Operator.Name,
		StartDate:           time.Now().UTC(),
		OpeningBalanceCents: req.OpeningBalanceCents,
		Status:              domain.SessionStatusActive,
	})
	if err != nil {
		return domain.TillSession{}, err
	}

	log.Info().Str("session_id", session.ID).Str("operator_id", session.OperatorID).
		Int64("opening_balance_cents", session.OpeningBalanceCents).Msg("till session started")
	return *session, nil
}

func (s *Service) EndTillSession(ctx context.Context, req domain.EndSessionRequest) (domain.TillSession, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return domain.TillSession{}, fmt.Errorf("%w: session id required", store.ErrValidation)
	}
	if req.CountedCashCents < 0 {
		return domain.TillSession{}, fmt.Errorf("%w: counted cash must be non-negative", store.ErrValidation)
	}

	session, err := s.repo.EndTillSession(ctx, req.SessionID, req.CountedCashCents, time.Now().UTC())
	if err != nil {
		return domain.TillSession{}, err
	}

	log.Info().Str("session_id", session.ID).Str("operator_id", session.OperatorID).
		Int64("expected_cash_cents", session.ExpectedCashCents).
		Int64("difference_cents", session.DifferenceCents).Msg("till session closed")
	return *session, nil
}

func (s *Service) GetActiveTillSession(ctx context.Context, operatorID string) (domain.TillSession, error) {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return domain.TillSession{}, fmt.Errorf("%w: operator id required", store.ErrValidation)
	}
	session, err := s.repo.GetActiveTillSession(ctx, operatorID)
	if err != nil {
		return domain.TillSession{}, err
	}
	return *session, nil
}

func (s *Service) ListTillSessions(ctx context.Context, limit int) ([]domain.TillSession, error) {
	return s.repo.ListTillSessions(ctx, limit)
}

// CashUp aggregates the month's ledger into per-operator totals. Cached
// behind a short TTL; every mutation invalidates, so the TTL only bounds
// staleness for concurrent writers.
func (s *Service) CashUp(ctx context.Context) (domain.CashUpSummary, error) {
	if payload, hit, err := s.reports.Get(ctx, cashUpCacheKey); err == nil && hit {
		var cached domain.CashUpSummary
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	} else if err != nil {
		log.Warn().Err(err).Msg("cash-up cache read failed")
	}

	now := time.Now().UTC()
	from := reportWindowStart(now)
	sales, err := s.repo.ListSalesBetween(ctx, from, now.Add(time.Minute))
	if err != nil {
		return domain.CashUpSummary{}, err
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return domain.CashUpSummary{}, err
	}
	operators := make([]domain.Operator, 0, len(users))
	for _, user := range users {
		if user.Active {
			operators = append(operators, domain.Operator{ID: user.ID, Name: user.Name})
		}
	}

	summary := report.Summarize(sales, operators, now, report.Options{IncludeWithdrawals: s.opts.IncludeWithdrawals})

	if payload, err := json.Marshal(summary); err == nil {
		if err := s.reports.Set(ctx, cashUpCacheKey, payload, s.opts.ReportTTL); err != nil {
			log.Warn().Err(err).Msg("cash-up cache write failed")
		}
	}
	return summary, nil
}

// Reorder ranks low-stock products by trailing 30-day demand.
func (s *Service) Reorder(ctx context.Context) (domain.ReorderList, error) {
	if payload, hit, err := s.reports.Get(ctx, reorderCacheKey); err == nil && hit {
		var cached domain.ReorderList
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	} else if err != nil {
		log.Warn().Err(err).Msg("reorder cache read failed")
	}

	now := time.Now().UTC()
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.ReorderList{}, err
	}
	sales, err := s.repo.ListSalesBetween(ctx, now.AddDate(0, 0, -reorderWindowDays), now.Add(time.Minute))
	if err != nil {
		return domain.ReorderList{}, err
	}

	list := reorder.Build(products, sales, now)

	if payload, err := json.Marshal(list); err == nil {
		if err := s.reports.Set(ctx, reorderCacheKey, payload, s.opts.ReportTTL); err != nil {
			log.Warn().Err(err).Msg("reorder cache write failed")
		}
	}
	return list, nil
}

func (s *Service) CreateUser(ctx context.Context, username, name, password, pin, role string) error {
	if err := requireAdministration(ctx); err != nil {
		return err
	}

	username = strings.ToLower(strings.TrimSpace(username))
	name = strings.TrimSpace(name)
	if username == "" || name == "" || password == "" {
		return fmt.Errorf("%w: username, name and password required", store.ErrValidation)
	}
	if role != domain.RoleAdministration && role != domain.RoleSales {
		return fmt.Errorf("%w: unknown role %q", store.ErrValidation, role)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	var pinHash string
	if pin != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		pinHash = string(hash)
	}

	if err := s.repo.CreateUser(ctx, domain.UserAccount{
		ID:        xid.New("user"),
		Username:  username,
		Name:      name,
		Password:  string(passwordHash),
		PIN:       pinHash,
		Role:      role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	log.Info().Str("username", username).Str("role", role).Msg("user created")
	return nil
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.reports.Invalidate(ctx, cashUpCacheKey, reorderCacheKey); err != nil {
		log.Warn().Err(err).Msg("report cache invalidation failed")
	}
}

func requireAdministration(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdministration {
		return fmt.Errorf("%w: administration role required", store.ErrUnauthorized)
	}
	return nil
}

// reportWindowStart is the earliest instant any cash-up period can reach:
// the month start, or the week start when the week began last month.
func reportWindowStart(now time.Time) time.Time {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := dayStart.AddDate(0, 0, -int(now.Weekday()))
	if weekStart.Before(monthStart) {
		return weekStart
	}
	return monthStart
}

func mergeLines(lines []domain.SaleLine) ([]domain.SaleLine, error) {
	merged := make([]domain.SaleLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		line.ProductID = strings.TrimSpace(line.ProductID)
		if line.ProductID == "" {
			return nil, fmt.Errorf("%w: line missing product id", store.ErrValidation)
		}
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", store.ErrValidation, line.ProductID)
		}
		if i, exists := index[line.ProductID]; exists {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

func validPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodTransfer:
		return true
	}
	return false
}

func withDefault(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return strings.TrimSpace(val)
}
