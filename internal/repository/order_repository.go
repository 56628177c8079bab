package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"kucoinmanager/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrDuplicateOrder - нарушение уникальности (client_oid, account_id):
	// вторая запись об одном ордере на одном аккаунте. Сигнализирует о баге
	// в слое исполнения и никогда не глотается.
	ErrDuplicateOrder = errors.New("duplicate order record for account")
)

// uniqueViolation - код PostgreSQL для нарушения unique constraint
const uniqueViolation = pq.ErrorCode("23505")

// OrderRepository - работа с таблицей orders
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create создает запись об ордере. На каждую пару (команда, аккаунт)
// допускается ровно одна запись - дубль возвращает ErrDuplicateOrder.
func (r *OrderRepository) Create(order *models.OrderRecord) error {
	query := `
		INSERT INTO orders (order_id, client_oid, account_id, symbol, side, size, price, leverage, status, error_message, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	now := time.Now()
	order.CreatedAt = now
	order.ModifiedAt = now

	err := r.db.QueryRow(
		query,
		order.OrderID,
		order.ClientOid,
		order.AccountID,
		order.Symbol,
		order.Side,
		order.Size,
		order.Price,
		order.Leverage,
		order.Status,
		order.ErrorMessage,
		order.CreatedAt,
		order.ModifiedAt,
	).Scan(&order.ID)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateOrder
		}
		return err
	}

	return nil
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id int64) (*models.OrderRecord, error) {
	query := `
		SELECT id, order_id, client_oid, account_id, symbol, side, size, price, leverage, status, error_message, created_at, modified_at
		FROM orders
		WHERE id = $1`

	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByOrderID возвращает запись по биржевому идентификатору ордера
func (r *OrderRepository) GetByOrderID(orderID string) (*models.OrderRecord, error) {
	query := `
		SELECT id, order_id, client_oid, account_id, symbol, side, size, price, leverage, status, error_message, created_at, modified_at
		FROM orders
		WHERE order_id = $1`

	return r.scanOne(r.db.QueryRow(query, orderID))
}

// GetRecent возвращает последние N ордеров
func (r *OrderRepository) GetRecent(limit int) ([]*models.OrderRecord, error) {
	query := `
		SELECT id, order_id, client_oid, account_id, symbol, side, size, price, leverage, status, error_message, created_at, modified_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// GetByAccountID возвращает ордера аккаунта
func (r *OrderRepository) GetByAccountID(accountID int64, limit int) ([]*models.OrderRecord, error) {
	query := `
		SELECT id, order_id, client_oid, account_id, symbol, side, size, price, leverage, status, error_message, created_at, modified_at
		FROM orders
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// GetOpenBySymbol возвращает живые ордера на символе
func (r *OrderRepository) GetOpenBySymbol(symbol string) ([]*models.OrderRecord, error) {
	query := `
		SELECT id, order_id, client_oid, account_id, symbol, side, size, price, leverage, status, error_message, created_at, modified_at
		FROM orders
		WHERE symbol = $1 AND status = $2
		ORDER BY created_at DESC`

	rows, err := r.db.Query(query, symbol, models.OrderStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// GetByStatus возвращает ордера с определенным статусом
func (r *OrderRepository) GetByStatus(status string, limit int) ([]*models.OrderRecord, error) {
	query := `
		SELECT id, order_id, client_oid, account_id, symbol, side, size, price, leverage, status, error_message, created_at, modified_at
		FROM orders
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// UpdateStatus обновляет статус ордера по ID записи
func (r *OrderRepository) UpdateStatus(id int64, status string) error {
	query := `
		UPDATE orders
		SET status = $1, modified_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, status, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// MarkCanceled помечает ордер отменённым по биржевому идентификатору
func (r *OrderRepository) MarkCanceled(orderID string) error {
	query := `
		UPDATE orders
		SET status = $1, modified_at = $2
		WHERE order_id = $3`

	result, err := r.db.Exec(query, models.OrderStatusCanceled, time.Now(), orderID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// MarkCanceledBySymbol помечает отменёнными все живые ордера символа.
// Используется после массовой отмены, когда биржа не вернула список
// идентификаторов.
func (r *OrderRepository) MarkCanceledBySymbol(symbol string) (int64, error) {
	query := `
		UPDATE orders
		SET status = $1, modified_at = $2
		WHERE symbol = $3 AND status = $4`

	result, err := r.db.Exec(query, models.OrderStatusCanceled, time.Now(), symbol, models.OrderStatusOpen)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// Count возвращает общее количество ордеров
func (r *OrderRepository) Count() (int, error) {
	query := `SELECT COUNT(*) FROM orders`

	var count int
	err := r.db.QueryRow(query).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// CountByStatus возвращает количество ордеров с определенным статусом
func (r *OrderRepository) CountByStatus(status string) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE status = $1`

	var count int
	err := r.db.QueryRow(query, status).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// DeleteOlderThan удаляет ордера старше указанной даты
func (r *OrderRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	query := `DELETE FROM orders WHERE created_at < $1`

	result, err := r.db.Exec(query, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (r *OrderRepository) scanOne(row *sql.Row) (*models.OrderRecord, error) {
	order := &models.OrderRecord{}
	err := row.Scan(
		&order.ID,
		&order.OrderID,
		&order.ClientOid,
		&order.AccountID,
		&order.Symbol,
		&order.Side,
		&order.Size,
		&order.Price,
		&order.Leverage,
		&order.Status,
		&order.ErrorMessage,
		&order.CreatedAt,
		&order.ModifiedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) scanAll(rows *sql.Rows) ([]*models.OrderRecord, error) {
	var orders []*models.OrderRecord
	for rows.Next() {
		order := &models.OrderRecord{}
		err := rows.Scan(
			&order.ID,
			&order.OrderID,
			&order.ClientOid,
			&order.AccountID,
			&order.Symbol,
			&order.Side,
			&order.Size,
			&order.Price,
			&order.Leverage,
			&order.Status,
			&order.ErrorMessage,
			&order.CreatedAt,
			&order.ModifiedAt,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}
