package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

const serializableAttempts = 3

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// runSerializable executes fn inside a SERIALIZABLE transaction, retrying
// on serialization failure or deadlock before surfacing ErrConflict.
// fn must reset any captured outputs at the top so a retry starts clean.
func (s *Store) runSerializable(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < serializableAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: retries exhausted: %v", store.ErrConflict, lastErr)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_cents, stock, low_stock_threshold, active
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Stock, &p.LowStockThreshold, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, price_cents, stock, low_stock_threshold, active
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Category, &product.PriceCents, &product.Stock, &product.LowStockThreshold, &product.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, fmt.Errorf("%w: product requires name, category and positive price", store.ErrValidation)
	}
	if product.Stock < 0 || product.LowStockThreshold < 0 {
		return nil, fmt.Errorf("%w: stock and threshold must be non-negative", store.ErrValidation)
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}

	product.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price_cents, stock, low_stock_threshold, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
	`, product.ID, product.Name, product.Category, product.PriceCents, product.Stock, product.LowStockThreshold, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product %s already exists", store.ErrValidation, product.ID)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, update domain.ProductUpdateRequest) (*domain.Product, error) {
	if update.PriceCents != nil && *update.PriceCents < 1 {
		return nil, fmt.Errorf("%w: price must be positive", store.ErrValidation)
	}
	if update.LowStockThreshold != nil && *update.LowStockThreshold < 0 {
		return nil, fmt.Errorf("%w: threshold must be non-negative", store.ErrValidation)
	}

	var product domain.Product
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		product = domain.Product{}
		err := tx.QueryRowContext(ctx, `
			SELECT id, name, category, price_cents, stock, low_stock_threshold, active
			FROM products
			WHERE id = $1
			FOR UPDATE
		`, id).Scan(&product.ID, &product.Name, &product.Category, &product.PriceCents, &product.Stock, &product.LowStockThreshold, &product.Active)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		if update.Name != nil {
			product.Name = *update.Name
		}
		if update.Category != nil {
			product.Category = *update.Category
		}
		if update.PriceCents != nil {
			product.PriceCents = *update.PriceCents
		}
		if update.LowStockThreshold != nil {
			product.LowStockThreshold = *update.LowStockThreshold
		}
		if update.Active != nil {
			product.Active = *update.Active
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET name = $2, category = $3, price_cents = $4, low_stock_threshold = $5, active = $6, updated_at = now()
			WHERE id = $1
		`, id, product.Name, product.Category, product.PriceCents, product.LowStockThreshold, product.Active)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}

	var created domain.Sale
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		working := sale
		working.Items = append([]domain.SaleItem(nil), sale.Items...)

		if working.Type == domain.SaleTypeSale {
			ids := uniqueProductIDs(working.Items)
			if len(ids) == 0 {
				return fmt.Errorf("%w: sale has no items", store.ErrValidation)
			}

			productRows, err := tx.QueryContext(ctx, `
				SELECT id, name, price_cents, stock
				FROM products
				WHERE active = true AND id = ANY($1)
				FOR UPDATE
			`, ids)
			if err != nil {
				return err
			}
			type productState struct {
				name       string
				priceCents int64
				stock      int
			}
			productMap := make(map[string]productState, len(ids))
			for productRows.Next() {
				var id string
				var st productState
				if err := productRows.Scan(&id, &st.name, &st.priceCents, &st.stock); err != nil {
					_ = productRows.Close()
					return err
				}
				productMap[id] = st
			}
			if err := productRows.Err(); err != nil {
				_ = productRows.Close()
				return err
			}
			_ = productRows.Close()

			// Validate the combined quantity per product against the locked
			// rows; the same product may appear on more than one line.
			requested := make(map[string]int, len(working.Items))
			for _, item := range working.Items {
				if item.Quantity < 1 {
					return fmt.Errorf("%w: quantity for %s must be positive", store.ErrValidation, item.ProductID)
				}
				requested[item.ProductID] += item.Quantity
			}
			for productID, quantity := range requested {
				product, exists := productMap[productID]
				if !exists {
					return fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
				}
				if product.stock < quantity {
					return fmt.Errorf("%w: product %s has %d, requested %d", store.ErrInsufficientStock, productID, product.stock, quantity)
				}
			}

			// Money is recomputed from locked rows; client-sent prices are advisory.
			var subtotal int64
			for i, item := range working.Items {
				product := productMap[item.ProductID]

				_, err := tx.ExecContext(ctx, `
					UPDATE products
					SET stock = stock - $1, updated_at = now()
					WHERE id = $2
				`, item.Quantity, item.ProductID)
				if err != nil {
					return err
				}

				working.Items[i].Name = product.name
				working.Items[i].UnitPriceCents = product.priceCents
				working.Items[i].ReturnedQuantity = 0
				subtotal += product.priceCents * int64(item.Quantity)
			}

			working.SubtotalCents = subtotal
			working.TaxCents = domain.TaxCentsFor(subtotal, working.TaxRatePercent)
			working.TotalCents = subtotal + working.TaxCents

			if working.PaymentMethod == domain.PaymentMethodCash {
				if working.AmountPaidCents < working.TotalCents {
					return fmt.Errorf("%w: amount paid is below total", store.ErrValidation)
				}
				working.ChangeCents = working.AmountPaidCents - working.TotalCents
			} else {
				working.AmountPaidCents = working.TotalCents
				working.ChangeCents = 0
			}
		}

		authJSON, err := marshalAuthorizations(working.Authorizations)
		if err != nil {
			return err
		}
		detailJSON, err := marshalDetails(working)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO sales (
				id, date, type, status, payment_method, subtotal_cents, tax_rate_percent,
				tax_cents, total_cents, amount_paid_cents, change_cents, payment_reference,
				operator_id, operator_name, withdrawal_reason, details, authorizations
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		`, working.ID, working.Date, working.Type, working.Status, working.PaymentMethod,
			working.SubtotalCents, working.TaxRatePercent, working.TaxCents, working.TotalCents,
			working.AmountPaidCents, working.ChangeCents, nullIfEmpty(working.PaymentReference),
			working.OperatorID, working.OperatorName, nullIfEmpty(working.WithdrawalReason),
			detailJSON, authJSON)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: sale %s already exists", store.ErrValidation, working.ID)
			}
			return err
		}

		for _, item := range working.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sale_items (sale_id, product_id, name, unit_price_cents, quantity, returned_quantity)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, working.ID, item.ProductID, item.Name, item.UnitPriceCents, item.Quantity, item.ReturnedQuantity)
			if err != nil {
				return err
			}
		}

		created = working
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := s.scanSaleRow(s.db.QueryRowContext(ctx, saleSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.loadItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	sale.Items = items[id]
	return sale, nil
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, saleSelect+`
		WHERE date >= $1 AND date < $2
		ORDER BY date ASC, id ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	return s.collectSales(ctx, rows)
}

func (s *Store) ListSalesByOperatorBetween(ctx context.Context, operatorID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, saleSelect+`
		WHERE operator_id = $1 AND date >= $2 AND date < $3
		ORDER BY date ASC, id ASC
	`, operatorID, from, to)
	if err != nil {
		return nil, err
	}
	return s.collectSales(ctx, rows)
}

func (s *Store) VoidSale(ctx context.Context, saleID string, auth domain.AuthorizationRecord) (*store.VoidResult, error) {
	var result *store.VoidResult
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		result = nil

		sale, err := lockSale(ctx, tx, saleID)
		if err != nil {
			return err
		}
		if sale.Type != domain.SaleTypeSale {
			return fmt.Errorf("%w: %s entries cannot be voided", store.ErrState, sale.Type)
		}
		if sale.Status != domain.SaleStatusCompleted && sale.Status != domain.SaleStatusPartiallyReturned {
			return fmt.Errorf("%w: sale is %s", store.ErrState, sale.Status)
		}

		items, err := lockSaleItems(ctx, tx, saleID)
		if err != nil {
			return err
		}

		restored := make(map[string]int, len(items))
		for _, item := range items {
			remaining := item.RemainingQuantity()
			if remaining == 0 {
				continue
			}
			_, err := tx.ExecContext(ctx, `
				UPDATE products
				SET stock = stock + $1, updated_at = now()
				WHERE id = $2
			`, remaining, item.ProductID)
			if err != nil {
				return err
			}
			restored[item.ProductID] = remaining
		}

		sale.Status = domain.SaleStatusVoided
		sale.Authorizations = append(sale.Authorizations, auth)
		if err := updateSaleStatus(ctx, tx, sale); err != nil {
			return err
		}

		sale.Items = items
		result = &store.VoidResult{Sale: sale, Restored: restored}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ReturnItems(ctx context.Context, saleID string, lines []domain.ReturnLine, auth domain.AuthorizationRecord) (*store.ReturnResult, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no return lines", store.ErrValidation)
	}

	var result *store.ReturnResult
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		result = nil

		sale, err := lockSale(ctx, tx, saleID)
		if err != nil {
			return err
		}
		if sale.Type != domain.SaleTypeSale {
			return fmt.Errorf("%w: %s entries cannot accept returns", store.ErrState, sale.Type)
		}
		if sale.Status != domain.SaleStatusCompleted && sale.Status != domain.SaleStatusPartiallyReturned {
			return fmt.Errorf("%w: sale is %s", store.ErrState, sale.Status)
		}

		items, err := lockSaleItems(ctx, tx, saleID)
		if err != nil {
			return err
		}
		itemIndex := make(map[string]int, len(items))
		for i, item := range items {
			itemIndex[item.ProductID] = i
		}

		// Reject the whole call before any write.
		requested := make(map[string]int, len(lines))
		for _, line := range lines {
			if line.Quantity < 1 {
				return fmt.Errorf("%w: return quantity for %s must be positive", store.ErrValidation, line.ProductID)
			}
			idx, ok := itemIndex[line.ProductID]
			if !ok {
				return fmt.Errorf("%w: product %s is not on sale %s", store.ErrValidation, line.ProductID, saleID)
			}
			requested[line.ProductID] += line.Quantity
			if requested[line.ProductID] > items[idx].RemainingQuantity() {
				return fmt.Errorf("%w: return of %s exceeds remaining quantity", store.ErrValidation, line.ProductID)
			}
		}

		var returnedValue int64
		restored := make(map[string]int, len(requested))
		for productID, qty := range requested {
			idx := itemIndex[productID]
			items[idx].ReturnedQuantity += qty
			returnedValue += int64(qty) * items[idx].UnitPriceCents

			_, err := tx.ExecContext(ctx, `
				UPDATE sale_items
				SET returned_quantity = $1
				WHERE sale_id = $2 AND product_id = $3
			`, items[idx].ReturnedQuantity, saleID, productID)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE products
				SET stock = stock + $1, updated_at = now()
				WHERE id = $2
			`, qty, productID)
			if err != nil {
				return err
			}
			restored[productID] = qty
		}

		sale.Items = items
		if sale.FullyReturned() {
			sale.Status = domain.SaleStatusReturned
		} else {
			sale.Status = domain.SaleStatusPartiallyReturned
		}
		sale.Authorizations = append(sale.Authorizations, auth)
		if err := updateSaleStatus(ctx, tx, sale); err != nil {
			return err
		}

		refund := returnedValue + domain.ProportionalTaxCents(sale.TaxCents, sale.SubtotalCents, returnedValue)
		result = &store.ReturnResult{Sale: sale, Restored: restored, RefundCents: refund}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) StartTillSession(ctx context.Context, session domain.TillSession) (*domain.TillSession, error) {
	if strings.TrimSpace(session.OperatorID) == "" {
		return nil, fmt.Errorf("%w: operator required", store.ErrValidation)
	}
	if session.OpeningBalanceCents < 0 {
		return nil, fmt.Errorf("%w: opening balance must be non-negative", store.ErrValidation)
	}
	if session.ID == "" {
		session.ID = xid.New("till")
	}
	if session.StartDate.IsZero() {
		session.StartDate = time.Now().UTC()
	}
	session.Status = domain.SessionStatusActive
	session.EndDate = nil

	// A partial unique index on (operator_id) WHERE status = 'active'
	// turns a concurrent double-open into a unique violation.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO till_sessions (
			id, operator_id, operator_name, start_date, opening_balance_cents, status
		)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, session.ID, session.OperatorID, session.OperatorName, session.StartDate, session.OpeningBalanceCents, session.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: operator %s already has an active session", store.ErrState, session.OperatorID)
		}
		return nil, err
	}
	saved := session
	return &saved, nil
}

func (s *Store) EndTillSession(ctx context.Context, sessionID string, countedCashCents int64, closedAt time.Time) (*domain.TillSession, error) {
	if countedCashCents < 0 {
		return nil, fmt.Errorf("%w: counted cash must be non-negative", store.ErrValidation)
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	var session domain.TillSession
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		session = domain.TillSession{}
		err := tx.QueryRowContext(ctx, `
			SELECT id, operator_id, operator_name, start_date, opening_balance_cents, status
			FROM till_sessions
			WHERE id = $1
			FOR UPDATE
		`, sessionID).Scan(
			&session.ID,
			&session.OperatorID,
			&session.OperatorName,
			&session.StartDate,
			&session.OpeningBalanceCents,
			&session.Status,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if session.Status != domain.SessionStatusActive {
			return fmt.Errorf("%w: session is %s", store.ErrState, session.Status)
		}
		session.StartDate = session.StartDate.UTC()

		// Cash counted against the same snapshot the close commits under.
		var cashSales int64
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(total_cents), 0)
			FROM sales
			WHERE operator_id = $1
			  AND payment_method = $2
			  AND status IN ($3, $4)
			  AND date >= $5
		`, session.OperatorID, domain.PaymentMethodCash,
			domain.SaleStatusCompleted, domain.SaleStatusPartiallyReturned,
			session.StartDate).Scan(&cashSales)
		if err != nil {
			return err
		}

		end := closedAt.UTC()
		session.Status = domain.SessionStatusClosed
		session.EndDate = &end
		session.ExpectedCashCents = session.OpeningBalanceCents + cashSales
		session.CountedCashCents = countedCashCents
		session.DifferenceCents = countedCashCents - session.ExpectedCashCents

		_, err = tx.ExecContext(ctx, `
			UPDATE till_sessions
			SET status = $2, end_date = $3, expected_cash_cents = $4, counted_cash_cents = $5, difference_cents = $6
			WHERE id = $1
		`, sessionID, session.Status, end, session.ExpectedCashCents, session.CountedCashCents, session.DifferenceCents)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) GetActiveTillSession(ctx context.Context, operatorID string) (*domain.TillSession, error) {
	var session domain.TillSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, operator_id, operator_name, start_date, opening_balance_cents, status
		FROM till_sessions
		WHERE operator_id = $1 AND status = $2
		ORDER BY start_date DESC
		LIMIT 1
	`, operatorID, domain.SessionStatusActive).Scan(
		&session.ID,
		&session.OperatorID,
		&session.OperatorName,
		&session.StartDate,
		&session.OpeningBalanceCents,
		&session.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	session.StartDate = session.StartDate.UTC()
	return &session, nil
}

func (s *Store) ListTillSessions(ctx context.Context, limit int) ([]domain.TillSession, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operator_id, operator_name, start_date, opening_balance_cents, status,
			end_date, expected_cash_cents, counted_cash_cents, difference_cents
		FROM till_sessions
		ORDER BY start_date DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.TillSession, 0, limit)
	for rows.Next() {
		var session domain.TillSession
		var endDate sql.NullTime
		var expected, counted, difference sql.NullInt64
		if err := rows.Scan(
			&session.ID,
			&session.OperatorID,
			&session.OperatorName,
			&session.StartDate,
			&session.OpeningBalanceCents,
			&session.Status,
			&endDate,
			&expected,
			&counted,
			&difference,
		); err != nil {
			return nil, err
		}
		session.StartDate = session.StartDate.UTC()
		if endDate.Valid {
			end := endDate.Time.UTC()
			session.EndDate = &end
		}
		session.ExpectedCashCents = expected.Int64
		session.CountedCashCents = counted.Int64
		session.DifferenceCents = difference.Int64
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	var pin sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, name, password, pin, role, active, created_at
		FROM users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(
		&user.ID, &user.Username, &user.Name, &user.Password, &pin, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.PIN = pin.String
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || user.Password == "" {
		return fmt.Errorf("%w: username and password required", store.ErrValidation)
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, name, password, pin, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, user.ID, user.Username, user.Name, user.Password, nullIfEmpty(user.PIN), user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username %s taken", store.ErrValidation, user.Username)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, name, password, pin, role, active, created_at
		FROM users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		var pin sql.NullString
		if err := rows.Scan(&user.ID, &user.Username, &user.Name, &user.Password, &pin, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.PIN = pin.String
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

const saleSelect = `
	SELECT id, date, type, status, payment_method, subtotal_cents, tax_rate_percent,
		tax_cents, total_cents, amount_paid_cents, change_cents, payment_reference,
		operator_id, operator_name, withdrawal_reason, details, authorizations
	FROM sales`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSaleRow(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var paymentRef, withdrawalReason sql.NullString
	var detailsRaw, authRaw []byte
	err := row.Scan(
		&sale.ID,
		&sale.Date,
		&sale.Type,
		&sale.Status,
		&sale.PaymentMethod,
		&sale.SubtotalCents,
		&sale.TaxRatePercent,
		&sale.TaxCents,
		&sale.TotalCents,
		&sale.AmountPaidCents,
		&sale.ChangeCents,
		&paymentRef,
		&sale.OperatorID,
		&sale.OperatorName,
		&withdrawalReason,
		&detailsRaw,
		&authRaw,
	)
	if err != nil {
		return nil, err
	}
	sale.Date = sale.Date.UTC()
	sale.PaymentReference = paymentRef.String
	sale.WithdrawalReason = withdrawalReason.String
	if err := unmarshalDetails(&sale, detailsRaw); err != nil {
		return nil, err
	}
	if len(authRaw) > 0 {
		if err := json.Unmarshal(authRaw, &sale.Authorizations); err != nil {
			return nil, err
		}
	}
	return &sale, nil
}

func (s *Store) collectSales(ctx context.Context, rows *sql.Rows) ([]domain.Sale, error) {
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	ids := make([]string, 0, 64)
	for rows.Next() {
		sale, err := s.scanSaleRow(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
		if sale.Type == domain.SaleTypeSale {
			ids = append(ids, sale.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) loadItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleItem, error) {
	result := make(map[string][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, name, unit_price_cents, quantity, returned_quantity
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, product_id
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var item domain.SaleItem
		if err := rows.Scan(&saleID, &item.ProductID, &item.Name, &item.UnitPriceCents, &item.Quantity, &item.ReturnedQuantity); err != nil {
			return nil, err
		}
		result[saleID] = append(result[saleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func lockSale(ctx context.Context, tx *sql.Tx, saleID string) (*domain.Sale, error) {
	var sale domain.Sale
	var authRaw []byte
	err := tx.QueryRowContext(ctx, `
		SELECT id, type, status, subtotal_cents, tax_cents, authorizations
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, saleID).Scan(&sale.ID, &sale.Type, &sale.Status, &sale.SubtotalCents, &sale.TaxCents, &authRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if len(authRaw) > 0 {
		if err := json.Unmarshal(authRaw, &sale.Authorizations); err != nil {
			return nil, err
		}
	}
	return &sale, nil
}

func lockSaleItems(ctx context.Context, tx *sql.Tx, saleID string) ([]domain.SaleItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, name, unit_price_cents, quantity, returned_quantity
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY product_id
		FOR UPDATE
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.UnitPriceCents, &item.Quantity, &item.ReturnedQuantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func updateSaleStatus(ctx context.Context, tx *sql.Tx, sale *domain.Sale) error {
	authJSON, err := marshalAuthorizations(sale.Authorizations)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, authorizations = $3
		WHERE id = $1
	`, sale.ID, sale.Status, authJSON)
	return err
}

// saleDetails is the JSONB payload for non-merchandise entry types.
type saleDetails struct {
	Airtime     *domain.AirtimeDetails     `json:"airtime,omitempty"`
	Electricity *domain.ElectricityDetails `json:"electricity,omitempty"`
	Voucher     *domain.VoucherDetails     `json:"voucher,omitempty"`
}

func marshalDetails(sale domain.Sale) ([]byte, error) {
	details := saleDetails{Airtime: sale.Airtime, Electricity: sale.Electricity, Voucher: sale.Voucher}
	return json.Marshal(details)
}

func unmarshalDetails(sale *domain.Sale, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	var details saleDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return err
	}
	sale.Airtime = details.Airtime
	sale.Electricity = details.Electricity
	sale.Voucher = details.Voucher
	return nil
}

func marshalAuthorizations(records []domain.AuthorizationRecord) ([]byte, error) {
	if records == nil {
		records = []domain.AuthorizationRecord{}
	}
	return json.Marshal(records)
}

func uniqueProductIDs(items []domain.SaleItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, exists := seen[item.ProductID]; exists {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
