package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

type Store struct {
	mu                      sync.RWMutex
	products                map[string]domain.Product
	salesByID               map[string]*domain.Sale
	saleOrder               []string
	sessionsByID            map[string]domain.TillSession
	activeSessionByOperator map[string]string
	usersByUsername         map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD, SEED_SALES_PASSWORD,
// SEED_ADMIN_PIN; hardcoded dev defaults apply when unset, with a warning.
// The memory store is never selected when DATABASE_URL is set.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	salesPwd := envOr("SEED_SALES_PASSWORD", "sales123")
	adminPIN := envOr("SEED_ADMIN_PIN", "739154")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SALES_PASSWORD") == "" {
		log.Warn().Msg("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_SALES_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		id       string
		username string
		name     string
		password string
		pin      string
		role     string
	}{
		{"user-admin", "alex", "Alex Doe", adminPwd, adminPIN, domain.RoleAdministration},
		{"user-sales", "sam", "Sam Naidoo", salesPwd, "", domain.RoleSales},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("hash seed password")
		}
		account := domain.UserAccount{
			ID:        u.id,
			Username:  u.username,
			Name:      u.name,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
		if u.pin != "" {
			pinHash, err := bcrypt.GenerateFromPassword([]byte(u.pin), bcrypt.DefaultCost)
			if err != nil {
				log.Fatal().Err(err).Str("username", u.username).Msg("hash seed pin")
			}
			account.PIN = string(pinHash)
		}
		users[u.username] = account
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:                make(map[string]domain.Product),
		salesByID:               make(map[string]*domain.Sale),
		saleOrder:               make([]string, 0, 128),
		sessionsByID:            make(map[string]domain.TillSession),
		activeSessionByOperator: make(map[string]string),
		usersByUsername:         seedUsers(),
	}
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "prod-1", Name: "Wireless Headphones", Category: "Electronics", PriceCents: 9999, Stock: 120, LowStockThreshold: 20, Active: true},
		{ID: "prod-2", Name: "Smartwatch", Category: "Electronics", PriceCents: 19999, Stock: 75, LowStockThreshold: 15, Active: true},
		{ID: "prod-3", Name: "Laptop Pro", Category: "Electronics", PriceCents: 129999, Stock: 30, LowStockThreshold: 10, Active: true},
		{ID: "prod-4", Name: "Digital Camera", Category: "Electronics", PriceCents: 49999, Stock: 45, LowStockThreshold: 15, Active: true},
		{ID: "prod-5", Name: "Ergonomic Chair", Category: "Furniture", PriceCents: 24999, Stock: 40, LowStockThreshold: 10, Active: true},
		{ID: "prod-6", Name: "Wooden Desk", Category: "Furniture", PriceCents: 39999, Stock: 25, LowStockThreshold: 5, Active: true},
		{ID: "prod-7", Name: "Ceramic Mug Set", Category: "Homeware", PriceCents: 3999, Stock: 200, LowStockThreshold: 50, Active: true},
		{ID: "prod-8", Name: "Indoor Plant", Category: "Homeware", PriceCents: 2999, Stock: 150, LowStockThreshold: 30, Active: true},
		{ID: "prod-9", Name: "Leather Notebook", Category: "Stationery", PriceCents: 2499, Stock: 30, LowStockThreshold: 50, Active: true},
		{ID: "prod-10", Name: "Bluetooth Speaker", Category: "Electronics", PriceCents: 7999, Stock: 90, LowStockThreshold: 20, Active: true},
	}

	s := New()
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, fmt.Errorf("%w: product requires name, category and positive price", store.ErrValidation)
	}
	if product.Stock < 0 || product.LowStockThreshold < 0 {
		return nil, fmt.Errorf("%w: stock and threshold must be non-negative", store.ErrValidation)
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("%w: product %s already exists", store.ErrValidation, product.ID)
	}

	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, id string, update domain.ProductUpdateRequest) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if update.Name != nil {
		product.Name = *update.Name
	}
	if update.Category != nil {
		product.Category = *update.Category
	}
	if update.PriceCents != nil {
		if *update.PriceCents < 1 {
			return nil, fmt.Errorf("%w: price must be positive", store.ErrValidation)
		}
		product.PriceCents = *update.PriceCents
	}
	if update.LowStockThreshold != nil {
		if *update.LowStockThreshold < 0 {
			return nil, fmt.Errorf("%w: threshold must be non-negative", store.ErrValidation)
		}
		product.LowStockThreshold = *update.LowStockThreshold
	}
	if update.Active != nil {
		product.Active = *update.Active
	}

	s.products[id] = product
	updated := product
	return &updated, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, fmt.Errorf("%w: sale %s already exists", store.ErrValidation, sale.ID)
	}

	if sale.Type == domain.SaleTypeSale {
		// Validate the combined quantity per product before mutating anything;
		// the same product may appear on more than one line.
		requested := make(map[string]int, len(sale.Items))
		for _, item := range sale.Items {
			if item.Quantity < 1 {
				return nil, fmt.Errorf("%w: quantity for %s must be positive", store.ErrValidation, item.ProductID)
			}
			requested[item.ProductID] += item.Quantity
		}
		for productID, quantity := range requested {
			product, exists := s.products[productID]
			if !exists || !product.Active {
				return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
			}
			if product.Stock < quantity {
				return nil, fmt.Errorf("%w: product %s has %d, requested %d", store.ErrInsufficientStock, productID, product.Stock, quantity)
			}
		}

		// Money is recomputed from the store's prices; client-sent prices
		// are advisory.
		var subtotal int64
		for i, item := range sale.Items {
			product := s.products[item.ProductID]
			product.Stock -= item.Quantity
			s.products[item.ProductID] = product

			sale.Items[i].Name = product.Name
			sale.Items[i].UnitPriceCents = product.PriceCents
			sale.Items[i].ReturnedQuantity = 0
			subtotal += product.PriceCents * int64(item.Quantity)
		}

		sale.SubtotalCents = subtotal
		sale.TaxCents = domain.TaxCentsFor(subtotal, sale.TaxRatePercent)
		sale.TotalCents = subtotal + sale.TaxCents

		if sale.PaymentMethod == domain.PaymentMethodCash {
			if sale.AmountPaidCents < sale.TotalCents {
				return nil, fmt.Errorf("%w: amount paid is below total", store.ErrValidation)
			}
			sale.ChangeCents = sale.AmountPaidCents - sale.TotalCents
		} else {
			sale.AmountPaidCents = sale.TotalCents
			sale.ChangeCents = 0
		}
	}

	stored := cloneSale(sale)
	s.salesByID[sale.ID] = stored
	s.saleOrder = append(s.saleOrder, sale.ID)

	result := cloneSale(*stored)
	return result, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(*sale), nil
}

func (s *Store) ListSalesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.saleOrder))
	for _, id := range s.saleOrder {
		sale := s.salesByID[id]
		if sale.Date.Before(from) || !sale.Date.Before(to) {
			continue
		}
		sales = append(sales, *cloneSale(*sale))
	}
	return sales, nil
}

func (s *Store) ListSalesByOperatorBetween(_ context.Context, operatorID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 16)
	for _, id := range s.saleOrder {
		sale := s.salesByID[id]
		if sale.OperatorID != operatorID {
			continue
		}
		if sale.Date.Before(from) || !sale.Date.Before(to) {
			continue
		}
		sales = append(sales, *cloneSale(*sale))
	}
	return sales, nil
}

func (s *Store) VoidSale(_ context.Context, saleID string, auth domain.AuthorizationRecord) (*store.VoidResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Type != domain.SaleTypeSale {
		return nil, fmt.Errorf("%w: %s entries cannot be voided", store.ErrState, sale.Type)
	}
	if sale.Status != domain.SaleStatusCompleted && sale.Status != domain.SaleStatusPartiallyReturned {
		return nil, fmt.Errorf("%w: sale is %s", store.ErrState, sale.Status)
	}

	restored := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		remaining := item.RemainingQuantity()
		if remaining == 0 {
			continue
		}
		if product, exists := s.products[item.ProductID]; exists {
			product.Stock += remaining
			s.products[item.ProductID] = product
		}
		restored[item.ProductID] = remaining
	}

	sale.Status = domain.SaleStatusVoided
	sale.Authorizations = append(sale.Authorizations, auth)

	return &store.VoidResult{Sale: cloneSale(*sale), Restored: restored}, nil
}

func (s *Store) ReturnItems(_ context.Context, saleID string, lines []domain.ReturnLine, auth domain.AuthorizationRecord) (*store.ReturnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Type != domain.SaleTypeSale {
		return nil, fmt.Errorf("%w: %s entries cannot accept returns", store.ErrState, sale.Type)
	}
	if sale.Status != domain.SaleStatusCompleted && sale.Status != domain.SaleStatusPartiallyReturned {
		return nil, fmt.Errorf("%w: sale is %s", store.ErrState, sale.Status)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no return lines", store.ErrValidation)
	}

	itemIndex := make(map[string]int, len(sale.Items))
	for i, item := range sale.Items {
		itemIndex[item.ProductID] = i
	}

	// Reject the whole call before touching anything.
	requested := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: return quantity for %s must be positive", store.ErrValidation, line.ProductID)
		}
		idx, ok := itemIndex[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s is not on sale %s", store.ErrValidation, line.ProductID, saleID)
		}
		requested[line.ProductID] += line.Quantity
		if requested[line.ProductID] > sale.Items[idx].RemainingQuantity() {
			return nil, fmt.Errorf("%w: return of %s exceeds remaining quantity", store.ErrValidation, line.ProductID)
		}
	}

	var returnedValue int64
	restored := make(map[string]int, len(requested))
	for productID, qty := range requested {
		idx := itemIndex[productID]
		sale.Items[idx].ReturnedQuantity += qty
		returnedValue += int64(qty) * sale.Items[idx].UnitPriceCents
		if product, exists := s.products[productID]; exists {
			product.Stock += qty
			s.products[productID] = product
		}
		restored[productID] = qty
	}

	refund := returnedValue + domain.ProportionalTaxCents(sale.TaxCents, sale.SubtotalCents, returnedValue)
	if sale.FullyReturned() {
		sale.Status = domain.SaleStatusReturned
	} else {
		sale.Status = domain.SaleStatusPartiallyReturned
	}
	sale.Authorizations = append(sale.Authorizations, auth)

	return &store.ReturnResult{Sale: cloneSale(*sale), Restored: restored, RefundCents: refund}, nil
}

func (s *Store) StartTillSession(_ context.Context, session domain.TillSession) (*domain.TillSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.OperatorID == "" {
		return nil, fmt.Errorf("%w: operator required", store.ErrValidation)
	}
	if session.OpeningBalanceCents < 0 {
		return nil, fmt.Errorf("%w: opening balance must be non-negative", store.ErrValidation)
	}
	if _, active := s.activeSessionByOperator[session.OperatorID]; active {
		return nil, fmt.Errorf("%w: operator %s already has an active session", store.ErrState, session.OperatorID)
	}

	if session.ID == "" {
		session.ID = xid.New("till")
	}
	if session.StartDate.IsZero() {
		session.StartDate = time.Now().UTC()
	}
	session.Status = domain.SessionStatusActive
	session.EndDate = nil

	s.sessionsByID[session.ID] = session
	s.activeSessionByOperator[session.OperatorID] = session.ID
	created := session
	return &created, nil
}

func (s *Store) EndTillSession(_ context.Context, sessionID string, countedCashCents int64, closedAt time.Time) (*domain.TillSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if session.Status != domain.SessionStatusActive {
		return nil, fmt.Errorf("%w: session is %s", store.ErrState, session.Status)
	}
	if countedCashCents < 0 {
		return nil, fmt.Errorf("%w: counted cash must be non-negative", store.ErrValidation)
	}

	var cashSales int64
	for _, id := range s.saleOrder {
		sale := s.salesByID[id]
		if sale.OperatorID != session.OperatorID || sale.PaymentMethod != domain.PaymentMethodCash {
			continue
		}
		if sale.Status != domain.SaleStatusCompleted && sale.Status != domain.SaleStatusPartiallyReturned {
			continue
		}
		if sale.Date.Before(session.StartDate) {
			continue
		}
		cashSales += sale.TotalCents
	}

	end := closedAt.UTC()
	session.Status = domain.SessionStatusClosed
	session.EndDate = &end
	session.ExpectedCashCents = session.OpeningBalanceCents + cashSales
	session.CountedCashCents = countedCashCents
	session.DifferenceCents = countedCashCents - session.ExpectedCashCents

	s.sessionsByID[sessionID] = session
	delete(s.activeSessionByOperator, session.OperatorID)
	closed := session
	return &closed, nil
}

func (s *Store) GetActiveTillSession(_ context.Context, operatorID string) (*domain.TillSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, active := s.activeSessionByOperator[operatorID]
	if !active {
		return nil, store.ErrNotFound
	}
	session := s.sessionsByID[id]
	return &session, nil
}

func (s *Store) ListTillSessions(_ context.Context, limit int) ([]domain.TillSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]domain.TillSession, 0, len(s.sessionsByID))
	for _, session := range s.sessionsByID {
		sessions = append(sessions, session)
	}
	slices.SortFunc(sessions, func(a, b domain.TillSession) int {
		if a.StartDate.Equal(b.StartDate) {
			return cmpString(b.ID, a.ID)
		}
		if a.StartDate.After(b.StartDate) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || user.Password == "" {
		return fmt.Errorf("%w: username and password required", store.ErrValidation)
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("%w: username %s taken", store.ErrValidation, user.Username)
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func cloneSale(sale domain.Sale) *domain.Sale {
	copySale := sale
	copySale.Items = slices.Clone(sale.Items)
	copySale.Authorizations = slices.Clone(sale.Authorizations)
	if sale.Airtime != nil {
		airtime := *sale.Airtime
		copySale.Airtime = &airtime
	}
	if sale.Electricity != nil {
		electricity := *sale.Electricity
		copySale.Electricity = &electricity
	}
	if sale.Voucher != nil {
		voucher := *sale.Voucher
		copySale.Voucher = &voucher
	}
	return &copySale
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
