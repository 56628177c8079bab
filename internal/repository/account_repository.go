// Package repository содержит слой доступа к PostgreSQL: аккаунты и журнал
// ордеров. Секреты аккаунтов хранятся зашифрованными, шифрует сервисный слой.
package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"kucoinmanager/internal/models"
)

// Ошибки репозитория аккаунтов
var (
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateAPIKey - аккаунт с таким API ключом уже зарегистрирован
	ErrDuplicateAPIKey = errors.New("account with this api key already exists")
)

// AccountRepository - работа с таблицей accounts
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository создает новый экземпляр репозитория
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create регистрирует аккаунт
func (r *AccountRepository) Create(account *models.Account) error {
	query := `
		INSERT INTO accounts (name, api_key, api_secret, api_passphrase, api_type, group_label, sandbox, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	now := time.Now()
	account.CreatedAt = now
	account.ModifiedAt = now

	err := r.db.QueryRow(
		query,
		account.Name,
		account.APIKey,
		account.APISecret,
		account.APIPassphrase,
		account.APIType,
		account.Group,
		account.Sandbox,
		account.CreatedAt,
		account.ModifiedAt,
	).Scan(&account.ID)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateAPIKey
		}
		return err
	}

	return nil
}

// GetByID возвращает аккаунт по ID
func (r *AccountRepository) GetByID(id int64) (*models.Account, error) {
	query := `
		SELECT id, name, api_key, api_secret, api_passphrase, api_type, group_label, sandbox, created_at, modified_at
		FROM accounts
		WHERE id = $1`

	return r.scanOne(r.db.QueryRow(query, id))
}

// GetAll возвращает все аккаунты
func (r *AccountRepository) GetAll() ([]*models.Account, error) {
	query := `
		SELECT id, name, api_key, api_secret, api_passphrase, api_type, group_label, sandbox, created_at, modified_at
		FROM accounts
		ORDER BY id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// GetByType возвращает аккаунты с заданным типом API
func (r *AccountRepository) GetByType(apiType string) ([]*models.Account, error) {
	query := `
		SELECT id, name, api_key, api_secret, api_passphrase, api_type, group_label, sandbox, created_at, modified_at
		FROM accounts
		WHERE api_type = $1
		ORDER BY id`

	rows, err := r.db.Query(query, apiType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// GetByGroup возвращает аккаунты группы
func (r *AccountRepository) GetByGroup(group string) ([]*models.Account, error) {
	query := `
		SELECT id, name, api_key, api_secret, api_passphrase, api_type, group_label, sandbox, created_at, modified_at
		FROM accounts
		WHERE group_label = $1
		ORDER BY id`

	rows, err := r.db.Query(query, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// GetByIDs возвращает аккаунты по списку идентификаторов
func (r *AccountRepository) GetByIDs(ids []int64) ([]*models.Account, error) {
	query := `
		SELECT id, name, api_key, api_secret, api_passphrase, api_type, group_label, sandbox, created_at, modified_at
		FROM accounts
		WHERE id = ANY($1)
		ORDER BY id`

	rows, err := r.db.Query(query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// Update обновляет аккаунт
func (r *AccountRepository) Update(account *models.Account) error {
	query := `
		UPDATE accounts
		SET name = $1, api_key = $2, api_secret = $3, api_passphrase = $4, api_type = $5, group_label = $6, sandbox = $7, modified_at = $8
		WHERE id = $9`

	account.ModifiedAt = time.Now()

	result, err := r.db.Exec(
		query,
		account.Name,
		account.APIKey,
		account.APISecret,
		account.APIPassphrase,
		account.APIType,
		account.Group,
		account.Sandbox,
		account.ModifiedAt,
		account.ID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateAPIKey
		}
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// Delete удаляет аккаунт
func (r *AccountRepository) Delete(id int64) error {
	query := `DELETE FROM accounts WHERE id = $1`

	result, err := r.db.Exec(query, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// Count возвращает количество аккаунтов
func (r *AccountRepository) Count() (int, error) {
	query := `SELECT COUNT(*) FROM accounts`

	var count int
	err := r.db.QueryRow(query).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *AccountRepository) scanOne(row *sql.Row) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.APIKey,
		&account.APISecret,
		&account.APIPassphrase,
		&account.APIType,
		&account.Group,
		&account.Sandbox,
		&account.CreatedAt,
		&account.ModifiedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	return account, nil
}

func (r *AccountRepository) scanAll(rows *sql.Rows) ([]*models.Account, error) {
	var accounts []*models.Account
	for rows.Next() {
		account := &models.Account{}
		err := rows.Scan(
			&account.ID,
			&account.Name,
			&account.APIKey,
			&account.APISecret,
			&account.APIPassphrase,
			&account.APIType,
			&account.Group,
			&account.Sandbox,
			&account.CreatedAt,
			&account.ModifiedAt,
		)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}
