package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PGStore is the Postgres implementation of Store. Numeric columns travel as
// text so decimals never pass through float64.
type PGStore struct{ DB *pgxpool.Pool }

var _ Store = (*PGStore)(nil)

const productCols = `id, sku, name, price::text, stock, perishable, COALESCE(category_id, ''), created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var price string
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &price, &p.Stock, &p.Perishable, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return Product{}, fmt.Errorf("product %s price %q: %w", p.ID, price, err)
	}
	return p, nil
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return err
}

func (r *PGStore) GetProduct(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if err != nil {
		return Product{}, notFound("product", id, err)
	}
	return p, nil
}

// UpsertProduct keys on sku. Stock is only written on insert.
func (r *PGStore) UpsertProduct(ctx context.Context, p Product) (Product, error) {
	if p.SKU == "" {
		return Product{}, invalidInput("sku is required")
	}
	if p.Stock < 0 {
		return Product{}, invalidInput("stock cannot be negative")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var category any
	if p.CategoryID != "" {
		category = p.CategoryID
	}
	row := r.DB.QueryRow(ctx, `
		INSERT INTO products(id, sku, name, price, stock, perishable, category_id)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (sku) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price,
		    perishable = EXCLUDED.perishable, category_id = EXCLUDED.category_id,
		    updated_at = now()
		RETURNING `+productCols,
		p.ID, p.SKU, p.Name, p.Price.String(), p.Stock, p.Perishable, category)
	return scanProduct(row)
}

const slotCols = `id, slot_date, COALESCE(time_from, ''), COALESCE(time_to, ''), capacity, remaining, active`

func scanSlot(row pgx.Row) (PickupSlot, error) {
	var s PickupSlot
	err := row.Scan(&s.ID, &s.Date, &s.TimeFrom, &s.TimeTo, &s.Capacity, &s.Remaining, &s.Active)
	return s, err
}

func (r *PGStore) GetPickupSlot(ctx context.Context, id string) (PickupSlot, error) {
	s, err := scanSlot(r.DB.QueryRow(ctx, `SELECT `+slotCols+` FROM pickup_slots WHERE id=$1`, id))
	if err != nil {
		return PickupSlot{}, notFound("pickup slot", id, err)
	}
	return s, nil
}

func (r *PGStore) UpsertPickupSlot(ctx context.Context, s PickupSlot) (PickupSlot, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.DB.QueryRow(ctx, `
		INSERT INTO pickup_slots(id, slot_date, time_from, time_to, capacity, remaining, active)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET slot_date = EXCLUDED.slot_date, time_from = EXCLUDED.time_from, time_to = EXCLUDED.time_to,
		    capacity = EXCLUDED.capacity, remaining = EXCLUDED.remaining, active = EXCLUDED.active
		RETURNING `+slotCols,
		s.ID, s.Date, s.TimeFrom, s.TimeTo, s.Capacity, s.Remaining, s.Active)
	return scanSlot(row)
}

func (r *PGStore) ListPickupSlots(ctx context.Context, date string) ([]PickupSlot, error) {
	q := `SELECT ` + slotCols + ` FROM pickup_slots WHERE active`
	var args []any
	if date != "" {
		q += ` AND slot_date = $1::date`
		args = append(args, date)
	}
	q += ` ORDER BY slot_date, time_from`

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PickupSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func insertMovement(ctx context.Context, tx pgx.Tx, productID string, t MovementType, qty int, reason, actor string) (StockMovement, error) {
	mv := StockMovement{
		ID:        uuid.NewString(),
		ProductID: productID,
		Type:      t,
		Quantity:  qty,
		Reason:    reason,
		CreatedBy: actor,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO stock_movements(id, product_id, type, quantity, reason, created_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		RETURNING created_at`,
		mv.ID, productID, string(t), qty, reason, actor).Scan(&mv.CreatedAt)
	return mv, err
}

// ApplyMovement locks the product row, so concurrent movements on one product
// serialize and an out movement can never drive stock negative.
func (r *PGStore) ApplyMovement(ctx context.Context, in MovementInput) (Product, StockMovement, error) {
	if err := validateMovement(in); err != nil {
		return Product{}, StockMovement{}, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Product{}, StockMovement{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := scanProduct(tx.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1 FOR UPDATE`, in.ProductID))
	if err != nil {
		return Product{}, StockMovement{}, notFound("product", in.ProductID, err)
	}

	next := p.Stock
	switch in.Type {
	case MovementIn:
		next += in.Quantity
	case MovementOut:
		if in.Quantity > p.Stock {
			return Product{}, StockMovement{}, &StockError{
				ProductID: p.ID, ProductName: p.Name, Requested: in.Quantity, Available: p.Stock,
			}
		}
		next -= in.Quantity
	case MovementAdjust:
		next = in.Quantity
	}

	if err := tx.QueryRow(ctx, `
		UPDATE products SET stock = $2, updated_at = now() WHERE id=$1
		RETURNING updated_at`, p.ID, next).Scan(&p.UpdatedAt); err != nil {
		return Product{}, StockMovement{}, err
	}
	p.Stock = next

	mv, err := insertMovement(ctx, tx, p.ID, in.Type, in.Quantity, in.Reason, in.Actor)
	if err != nil {
		return Product{}, StockMovement{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Product{}, StockMovement{}, err
	}
	return p, mv, nil
}

func (r *PGStore) ListMovements(ctx context.Context, f MovementFilter, page, limit int) ([]StockMovement, int, error) {
	page, limit = Page(page, limit)

	var where []string
	var args []any
	if f.ProductID != "" {
		args = append(args, f.ProductID)
		where = append(where, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, (page-1)*limit)
	rows, err := r.DB.Query(ctx, fmt.Sprintf(`
		SELECT id, product_id, type, quantity, COALESCE(reason, ''), COALESCE(created_by, ''), created_at
		FROM stock_movements%s
		ORDER BY created_at DESC, seq DESC
		LIMIT $%d OFFSET $%d`, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []StockMovement{}
	for rows.Next() {
		var mv StockMovement
		var t string
		if err := rows.Scan(&mv.ID, &mv.ProductID, &t, &mv.Quantity, &mv.Reason, &mv.CreatedBy, &mv.CreatedAt); err != nil {
			return nil, 0, err
		}
		mv.Type = MovementType(t)
		out = append(out, mv)
	}
	return out, total, rows.Err()
}

// CreateOrder locks products in id order so two orders sharing products can
// not deadlock, then reserves, inserts and commits in one transaction.
func (r *PGStore) CreateOrder(ctx context.Context, o Order, items []OrderItem, actor string) ([]Product, error) {
	if err := validateNewOrder(o, items); err != nil {
		return nil, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	locked, err := lockProducts(ctx, tx, items)
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		p, ok := locked[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", it.ProductID, ErrNotFound)
		}
		if it.Quantity > p.Stock {
			return nil, &StockError{ProductID: p.ID, ProductName: p.Name, Requested: it.Quantity, Available: p.Stock}
		}
	}

	var slot any
	if o.PickupSlotID != "" {
		slot = o.PickupSlotID
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(id, order_number, user_id, customer_name, customer_phone, customer_email,
		                   pickup_slot_id, amount, currency, payment_method, notes, status, expires_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''),
		        $7, $8::numeric, $9, $10, NULLIF($11, ''), $12, $13)`,
		o.ID, o.OrderNumber, o.UserID, o.CustomerName, o.CustomerPhone, o.CustomerEmail,
		slot, o.Amount.String(), o.Currency, o.PaymentMethod, o.Notes, string(o.Status), o.ExpiresAt,
	); err != nil {
		return nil, err
	}

	reason := "order " + o.OrderNumber
	touched := make([]Product, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, product_name, product_price, quantity, subtotal)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric)`,
			it.ID, o.ID, it.ProductID, it.ProductName, it.ProductPrice.String(), it.Quantity, it.Subtotal.String(),
		); err != nil {
			return nil, err
		}

		p := locked[it.ProductID]
		ct, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now()
			WHERE id=$1 AND stock >= $2`, p.ID, it.Quantity)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() != 1 {
			return nil, &StockError{ProductID: p.ID, ProductName: p.Name, Requested: it.Quantity, Available: p.Stock}
		}
		if _, err := insertMovement(ctx, tx, p.ID, MovementOut, it.Quantity, reason, actor); err != nil {
			return nil, err
		}
		p.Stock -= it.Quantity
		touched = append(touched, p)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return touched, nil
}

const orderCols = `id, order_number, COALESCE(user_id, ''), customer_name, COALESCE(customer_phone, ''),
	COALESCE(customer_email, ''), COALESCE(pickup_slot_id, ''), amount::text, currency, payment_method,
	COALESCE(payment_provider, ''), COALESCE(notes, ''), status, COALESCE(temp_pickup_code, ''),
	COALESCE(final_pickup_code, ''), expires_at, paid_at, code_validated_at, picked_up_at, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var amount, status string
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.CustomerName, &o.CustomerPhone,
		&o.CustomerEmail, &o.PickupSlotID, &amount, &o.Currency, &o.PaymentMethod,
		&o.PaymentProvider, &o.Notes, &status, &o.TempPickupCode,
		&o.FinalPickupCode, &o.ExpiresAt, &o.PaidAt, &o.CodeValidatedAt, &o.PickedUpAt, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	var err error
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return Order{}, fmt.Errorf("order %s amount %q: %w", o.ID, amount, err)
	}
	return o, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// lockProducts takes row locks on every product of items in id order.
// CreateOrder and restocking Transitions both go through here, so two
// transactions touching the same products always lock them in the same order.
func lockProducts(ctx context.Context, tx pgx.Tx, items []OrderItem) (map[string]Product, error) {
	rows, err := tx.Query(ctx, `SELECT `+productCols+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, productIDs(items))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	locked := make(map[string]Product, len(items))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		locked[p.ID] = p
	}
	return locked, rows.Err()
}

// productIDs returns the distinct product ids of items, sorted.
func productIDs(items []OrderItem) []string {
	ids := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	sort.Strings(ids)
	return ids
}

func loadItems(ctx context.Context, q querier, orderID string) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, product_price::text, quantity, subtotal::text
		FROM order_items WHERE order_id=$1 ORDER BY product_name`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		var price, subtotal string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &price, &it.Quantity, &subtotal); err != nil {
			return nil, err
		}
		if it.ProductPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if it.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *PGStore) GetOrder(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return Order{}, notFound("order", id, err)
	}
	if o.Items, err = loadItems(ctx, r.DB, id); err != nil {
		return Order{}, err
	}
	if o.PickupSlotID != "" {
		s, err := r.GetPickupSlot(ctx, o.PickupSlotID)
		switch {
		case err == nil:
			o.PickupSlot = &s
		case !errors.Is(err, ErrNotFound):
			return Order{}, err
		}
	}
	return o, nil
}

func (r *PGStore) ListOrders(ctx context.Context, f OrderFilter, page, limit int) ([]Order, int, error) {
	page, limit = Page(page, limit)

	var where []string
	var args []any
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, (page-1)*limit)
	rows, err := r.DB.Query(ctx, fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderCols, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range out {
		if out[i].Items, err = loadItems(ctx, r.DB, out[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

func (r *PGStore) SetPaymentProvider(ctx context.Context, orderID, provider string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET payment_provider=$2, updated_at=now() WHERE id=$1`, orderID, provider)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return nil
}

// Transition is a compare-and-set on orders.status. When the guard fails the
// current status is read back so the caller can tell a lost race from a
// missing order.
func (r *PGStore) Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	if err := req.validate(); err != nil {
		return TransitionResult{}, err
	}
	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransitionResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var paidAt, validatedAt, pickedAt *time.Time
	switch req.To {
	case StatusPaid:
		paidAt = &at
	case StatusConfirmed:
		validatedAt = &at
	case StatusCompleted:
		pickedAt = &at
	}

	o, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders
		SET status = $3, updated_at = $4,
		    temp_pickup_code  = COALESCE(NULLIF($5, ''), temp_pickup_code),
		    final_pickup_code = COALESCE(NULLIF($6, ''), final_pickup_code),
		    paid_at           = COALESCE($7, paid_at),
		    code_validated_at = COALESCE($8, code_validated_at),
		    picked_up_at      = COALESCE($9, picked_up_at)
		WHERE id = $1 AND status = $2
		RETURNING `+orderCols,
		req.OrderID, string(req.From), string(req.To), at,
		req.TempPickupCode, req.FinalPickupCode, paidAt, validatedAt, pickedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		var actual string
		if err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, req.OrderID).Scan(&actual); err != nil {
			return TransitionResult{}, notFound("order", req.OrderID, err)
		}
		return TransitionResult{}, &TransitionError{OrderID: req.OrderID, From: req.From, To: req.To, Actual: Status(actual)}
	}
	if err != nil {
		return TransitionResult{}, err
	}

	if o.Items, err = loadItems(ctx, tx, o.ID); err != nil {
		return TransitionResult{}, err
	}

	var restocked []Product
	if req.Restock {
		reason := req.Reason
		if reason == "" {
			reason = "order canceled"
		}
		locked, err := lockProducts(ctx, tx, o.Items)
		if err != nil {
			return TransitionResult{}, err
		}
		for _, it := range o.Items {
			if _, ok := locked[it.ProductID]; !ok {
				continue
			}
			p, err := scanProduct(tx.QueryRow(ctx, `
				UPDATE products SET stock = stock + $2, updated_at = now()
				WHERE id=$1
				RETURNING `+productCols, it.ProductID, it.Quantity))
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				return TransitionResult{}, err
			}
			if _, err := insertMovement(ctx, tx, p.ID, MovementIn, it.Quantity, reason, req.Actor); err != nil {
				return TransitionResult{}, err
			}
			restocked = append(restocked, p)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Order: o, Restocked: restocked}, nil
}
