package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/store"
	"deleonpos/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

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

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(rnc, ''), active, created_at
		FROM tenants
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := make([]domain.Tenant, 0, 8)
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.RNC, &t.Active, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(rnc, ''), active, created_at
		FROM tenants
		WHERE id = $1
	`, tenantID).Scan(&t.ID, &t.Name, &t.RNC, &t.Active, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func (s *Store) CreateTenant(ctx context.Context, tenant domain.Tenant) (*domain.Tenant, error) {
	if strings.TrimSpace(tenant.ID) == "" || strings.TrimSpace(tenant.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, rnc, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, tenant.ID, tenant.Name, nullIfEmpty(tenant.RNC), tenant.Active, tenant.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &tenant, nil
}

func (s *Store) SetTenantActive(ctx context.Context, tenantID string, active bool) (*domain.Tenant, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tenants SET active = $2 WHERE id = $1`, tenantID, active)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetTenant(ctx, tenantID)
}

func (s *Store) ListDishes(ctx context.Context, tenantID string) ([]domain.Dish, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, category, price, active
		FROM dishes
		WHERE tenant_id = $1
		ORDER BY category, name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dishes := make([]domain.Dish, 0, 64)
	for rows.Next() {
		var d domain.Dish
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name, &d.Category, &d.Price, &d.Active); err != nil {
			return nil, err
		}
		dishes = append(dishes, d)
	}
	return dishes, rows.Err()
}

func (s *Store) GetDish(ctx context.Context, tenantID string, dishID string) (*domain.Dish, error) {
	var d domain.Dish
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, category, price, active
		FROM dishes
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, dishID).Scan(&d.ID, &d.TenantID, &d.Name, &d.Category, &d.Price, &d.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *Store) CreateDish(ctx context.Context, dish domain.Dish) (*domain.Dish, error) {
	if strings.TrimSpace(dish.TenantID) == "" || strings.TrimSpace(dish.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if dish.ID == "" {
		dish.ID = xid.New("dish")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dishes (tenant_id, id, name, category, price, active, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, dish.TenantID, dish.ID, dish.Name, dish.Category, dish.Price, dish.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &dish, nil
}

func (s *Store) UpdateDish(ctx context.Context, dish domain.Dish) (*domain.Dish, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE dishes
		SET name = $3, category = $4, price = $5, active = $6, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, dish.TenantID, dish.ID, dish.Name, dish.Category, dish.Price, dish.Active)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return &dish, nil
}

const orderColumns = `id, tenant_id, COALESCE(table_id, ''), items, COALESCE(payment_method, ''), COALESCE(channel, ''),
	delivery, subtotal, discount, tax, tip, total, COALESCE(ncf, ''), status, created_by, created_at, paid_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o      domain.Order
		items  []byte
		paidAt sql.NullTime
	)
	err := row.Scan(&o.ID, &o.TenantID, &o.TableID, &items, &o.PaymentMethod, &o.Channel,
		&o.Delivery, &o.Bill.Subtotal, &o.Bill.Discount, &o.Bill.Tax, &o.Bill.Tip, &o.Bill.Total,
		&o.NCF, &o.Status, &o.CreatedBy, &o.CreatedAt, &paidAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		o.PaidAt = &t
	}
	return &o, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if strings.TrimSpace(order.TenantID) == "" {
		return nil, store.ErrInvalidInput
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	items, err := json.Marshal(nonNilLines(order.Items))
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, tenant_id, table_id, items, payment_method, channel, delivery,
			subtotal, discount, tax, tip, total, ncf, status, created_by, created_at, paid_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, order.ID, order.TenantID, nullIfEmpty(order.TableID), items, nullIfEmpty(order.PaymentMethod), nullIfEmpty(order.Channel), order.Delivery,
		order.Bill.Subtotal, order.Bill.Discount, order.Bill.Tax, order.Bill.Tip, order.Bill.Total,
		nullIfEmpty(order.NCF), order.Status, order.CreatedBy, order.CreatedAt, nullTime(order.PaidAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &order, nil
}

func (s *Store) GetOrder(ctx context.Context, tenantID string, orderID string) (*domain.Order, error) {
	return scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE tenant_id = $1 AND id = $2`, tenantID, orderID))
}

func (s *Store) UpdateOrder(ctx context.Context, tenantID string, orderID string, mutate store.OrderMutator) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, orderID))
	if err != nil {
		return nil, err
	}
	if err := mutate(order); err != nil {
		return nil, err
	}
	items, err := json.Marshal(nonNilLines(order.Items))
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET table_id = $3, items = $4, payment_method = $5, channel = $6, delivery = $7,
			subtotal = $8, discount = $9, tax = $10, tip = $11, total = $12,
			ncf = $13, status = $14, paid_at = $15
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, orderID, nullIfEmpty(order.TableID), items, nullIfEmpty(order.PaymentMethod), nullIfEmpty(order.Channel), order.Delivery,
		order.Bill.Subtotal, order.Bill.Discount, order.Bill.Tax, order.Bill.Tip, order.Bill.Total,
		nullIfEmpty(order.NCF), order.Status, nullTime(order.PaidAt))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	order.ID, order.TenantID = orderID, tenantID
	return order, nil
}

func (s *Store) ListOrders(ctx context.Context, tenantID string, from time.Time, to time.Time) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 128)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

const sessionColumns = `id, tenant_id, date_key, register_id, opening_float, added_total, additions,
	status, opened_by, opened_at, closing, adjustments`

func scanSession(row rowScanner) (*domain.CashSession, error) {
	var (
		cs          domain.CashSession
		additions   []byte
		closing     []byte
		adjustments []byte
	)
	err := row.Scan(&cs.ID, &cs.TenantID, &cs.DateKey, &cs.RegisterID, &cs.OpeningFloat, &cs.AddedTotal, &additions,
		&cs.Status, &cs.OpenedBy, &cs.OpenedAt, &closing, &adjustments)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(additions, &cs.Additions); err != nil {
		return nil, fmt.Errorf("decode session additions: %w", err)
	}
	if err := json.Unmarshal(adjustments, &cs.Adjustments); err != nil {
		return nil, fmt.Errorf("decode session adjustments: %w", err)
	}
	if len(closing) > 0 {
		var c domain.CashClosing
		if err := json.Unmarshal(closing, &c); err != nil {
			return nil, fmt.Errorf("decode session closing: %w", err)
		}
		cs.Closing = &c
	}
	cs.OpenedAt = cs.OpenedAt.UTC()
	return &cs, nil
}

func encodeSession(cs domain.CashSession) (additions []byte, closing any, adjustments []byte, err error) {
	if cs.Additions == nil {
		cs.Additions = []domain.CashAddition{}
	}
	if cs.Adjustments == nil {
		cs.Adjustments = []domain.SessionAdjustment{}
	}
	if additions, err = json.Marshal(cs.Additions); err != nil {
		return nil, nil, nil, err
	}
	if adjustments, err = json.Marshal(cs.Adjustments); err != nil {
		return nil, nil, nil, err
	}
	if cs.Closing != nil {
		raw, err := json.Marshal(cs.Closing)
		if err != nil {
			return nil, nil, nil, err
		}
		closing = raw
	}
	return additions, closing, adjustments, nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error) {
	if strings.TrimSpace(session.TenantID) == "" || strings.TrimSpace(session.DateKey) == "" || strings.TrimSpace(session.RegisterID) == "" {
		return nil, store.ErrInvalidInput
	}
	if session.ID == "" {
		session.ID = xid.New("cash")
	}
	additions, closing, adjustments, err := encodeSession(session)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cash_sessions (
			id, tenant_id, date_key, register_id, opening_float, added_total, additions,
			status, opened_by, opened_at, closing, adjustments, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
	`, session.ID, session.TenantID, session.DateKey, session.RegisterID, session.OpeningFloat, session.AddedTotal, additions,
		session.Status, session.OpenedBy, session.OpenedAt, closing, adjustments)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) GetSession(ctx context.Context, tenantID string, dateKey string, registerID string) (*domain.CashSession, error) {
	return scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE tenant_id = $1 AND date_key = $2 AND register_id = $3
	`, tenantID, dateKey, registerID))
}

func (s *Store) UpdateSession(ctx context.Context, tenantID string, dateKey string, registerID string, mutate store.SessionMutator) (*domain.CashSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	session, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE tenant_id = $1 AND date_key = $2 AND register_id = $3
		FOR UPDATE
	`, tenantID, dateKey, registerID))
	if err != nil {
		return nil, err
	}
	id := session.ID
	if err := mutate(session); err != nil {
		return nil, err
	}
	session.ID, session.TenantID, session.DateKey, session.RegisterID = id, tenantID, dateKey, registerID

	additions, closing, adjustments, err := encodeSession(*session)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE cash_sessions
		SET opening_float = $2, added_total = $3, additions = $4, status = $5,
			closing = $6, adjustments = $7, updated_at = now()
		WHERE id = $1
	`, id, session.OpeningFloat, session.AddedTotal, additions, session.Status, closing, adjustments)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Store) ListSessions(ctx context.Context, tenantID string, dateKey string) ([]domain.CashSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE tenant_id = $1 AND date_key = $2
		ORDER BY register_id
	`, tenantID, dateKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.CashSession, 0, 4)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

func (s *Store) GetManagerCode(ctx context.Context, tenantID string) (*domain.ManagerCode, error) {
	var code domain.ManagerCode
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, hash, hint, updated_by, updated_at
		FROM manager_codes
		WHERE tenant_id = $1
	`, tenantID).Scan(&code.TenantID, &code.Hash, &code.Hint, &code.UpdatedBy, &code.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	code.UpdatedAt = code.UpdatedAt.UTC()
	return &code, nil
}

func (s *Store) UpsertManagerCode(ctx context.Context, code domain.ManagerCode) error {
	if strings.TrimSpace(code.TenantID) == "" || code.Hash == "" {
		return store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manager_codes (tenant_id, hash, hint, updated_by, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (tenant_id)
		DO UPDATE SET hash = EXCLUDED.hash, hint = EXCLUDED.hint, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
	`, code.TenantID, code.Hash, code.Hint, code.UpdatedBy, code.UpdatedAt)
	return err
}

func (s *Store) DeleteManagerCode(ctx context.Context, tenantID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM manager_codes WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

const mermaColumns = `id, tenant_id, date_key, product, COALESCE(unit, ''), raw_qty, unit_cost_original, total_cost,
	final_qty, waste_qty, waste_cost, effective_unit_cost, steps, status, COALESCE(note, ''),
	created_by, created_at, COALESCE(closed_by, ''), closed_at, COALESCE(edited_by, ''), edited_at`

func scanMerma(row rowScanner) (*domain.MermaBatch, error) {
	var (
		b        domain.MermaBatch
		steps    []byte
		closedAt sql.NullTime
		editedAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.TenantID, &b.DateKey, &b.Product, &b.Unit, &b.RawQty, &b.UnitCostOriginal, &b.TotalCost,
		&b.FinalQty, &b.WasteQty, &b.WasteCost, &b.EffectiveUnitCost, &steps, &b.Status, &b.Note,
		&b.CreatedBy, &b.CreatedAt, &b.ClosedBy, &closedAt, &b.EditedBy, &editedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(steps, &b.Steps); err != nil {
		return nil, fmt.Errorf("decode merma steps: %w", err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		b.ClosedAt = &t
	}
	if editedAt.Valid {
		t := editedAt.Time.UTC()
		b.EditedAt = &t
	}
	return &b, nil
}

func (s *Store) CreateMermaBatch(ctx context.Context, batch domain.MermaBatch) (*domain.MermaBatch, error) {
	if strings.TrimSpace(batch.TenantID) == "" {
		return nil, store.ErrInvalidInput
	}
	if batch.ID == "" {
		batch.ID = xid.New("merma")
	}
	steps, err := json.Marshal(nonNilSteps(batch.Steps))
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO merma_batches (
			id, tenant_id, date_key, product, unit, raw_qty, unit_cost_original, total_cost,
			final_qty, waste_qty, waste_cost, effective_unit_cost, steps, status, note,
			created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, batch.ID, batch.TenantID, batch.DateKey, batch.Product, nullIfEmpty(batch.Unit), batch.RawQty, batch.UnitCostOriginal, batch.TotalCost,
		batch.FinalQty, batch.WasteQty, batch.WasteCost, batch.EffectiveUnitCost, steps, batch.Status, nullIfEmpty(batch.Note),
		batch.CreatedBy, batch.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &batch, nil
}

func (s *Store) GetMermaBatch(ctx context.Context, tenantID string, batchID string) (*domain.MermaBatch, error) {
	return scanMerma(s.db.QueryRowContext(ctx, `SELECT `+mermaColumns+` FROM merma_batches WHERE tenant_id = $1 AND id = $2`, tenantID, batchID))
}

func (s *Store) UpdateMermaBatch(ctx context.Context, tenantID string, batchID string, mutate store.MermaMutator) (*domain.MermaBatch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	batch, err := scanMerma(tx.QueryRowContext(ctx, `SELECT `+mermaColumns+` FROM merma_batches WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, batchID))
	if err != nil {
		return nil, err
	}
	if err := mutate(batch); err != nil {
		return nil, err
	}
	batch.ID, batch.TenantID = batchID, tenantID
	steps, err := json.Marshal(nonNilSteps(batch.Steps))
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE merma_batches
		SET raw_qty = $3, unit_cost_original = $4, total_cost = $5, final_qty = $6, waste_qty = $7,
			waste_cost = $8, effective_unit_cost = $9, steps = $10, status = $11, note = $12,
			closed_by = $13, closed_at = $14, edited_by = $15, edited_at = $16
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, batchID, batch.RawQty, batch.UnitCostOriginal, batch.TotalCost, batch.FinalQty, batch.WasteQty,
		batch.WasteCost, batch.EffectiveUnitCost, steps, batch.Status, nullIfEmpty(batch.Note),
		nullIfEmpty(batch.ClosedBy), nullTime(batch.ClosedAt), nullIfEmpty(batch.EditedBy), nullTime(batch.EditedAt))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *Store) ListMermaBatches(ctx context.Context, tenantID string, dateKey string) ([]domain.MermaBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mermaColumns+`
		FROM merma_batches
		WHERE tenant_id = $1 AND date_key = $2
		ORDER BY created_at ASC
	`, tenantID, dateKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.MermaBatch, 0, 16)
	for rows.Next() {
		batch, err := scanMerma(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *batch)
	}
	return batches, rows.Err()
}

func (s *Store) ReplaceSplitBills(ctx context.Context, tenantID string, orderID string, bills []domain.SplitBill) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE tenant_id = $1 AND id = $2)`, tenantID, orderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM split_bills WHERE tenant_id = $1 AND order_id = $2`, tenantID, orderID); err != nil {
		return err
	}
	for i, bill := range bills {
		if bill.ID == "" {
			bill.ID = xid.New("split")
		}
		lines := bill.Lines
		if lines == nil {
			lines = []domain.SplitLine{}
		}
		rawLines, err := json.Marshal(lines)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO split_bills (
				id, tenant_id, order_id, position, account_id, account_name, lines,
				subtotal, tax, tip, total, charge_rule, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, bill.ID, tenantID, orderID, i, bill.AccountID, bill.AccountName, rawLines,
			bill.Subtotal, bill.Tax, bill.Tip, bill.Total, bill.ChargeRule, bill.CreatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListSplitBills(ctx context.Context, tenantID string, orderID string) ([]domain.SplitBill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, order_id, account_id, account_name, lines, subtotal, tax, tip, total, charge_rule, created_at
		FROM split_bills
		WHERE tenant_id = $1 AND order_id = $2
		ORDER BY position ASC
	`, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bills := make([]domain.SplitBill, 0, 4)
	for rows.Next() {
		var (
			b     domain.SplitBill
			lines []byte
		)
		if err := rows.Scan(&b.ID, &b.TenantID, &b.OrderID, &b.AccountID, &b.AccountName, &lines,
			&b.Subtotal, &b.Tax, &b.Tip, &b.Total, &b.ChargeRule, &b.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(lines, &b.Lines); err != nil {
			return nil, fmt.Errorf("decode split lines: %w", err)
		}
		b.CreatedAt = b.CreatedAt.UTC()
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, tenant_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.TenantID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, actor_username, actor_role, action, entity_type, entity_id, COALESCE(detail, ''), created_at
		FROM audit_logs
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, tenantID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = string(domain.RoleCashier)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, tenant_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.Password, user.Role, nullIfEmpty(user.TenantID), user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, COALESCE(tenant_id, ''), active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.TenantID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nonNilLines(lines []domain.OrderLine) []domain.OrderLine {
	if lines == nil {
		return []domain.OrderLine{}
	}
	return lines
}

func nonNilSteps(steps []domain.MermaStep) []domain.MermaStep {
	if steps == nil {
		return []domain.MermaStep{}
	}
	return steps
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
