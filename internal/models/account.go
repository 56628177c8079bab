package models

import "time"

// Account представляет суб-аккаунт KuCoin Futures с API ключами
//
// Инвариант: APIKey уникален среди всех аккаунтов (ограничение в БД).
// Секреты шифруются (AES-256-GCM) перед сохранением и никогда
// не возвращаются в JSON ответах.
type Account struct {
	ID            int64     `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	APIKey        string    `json:"api_key" db:"api_key"`       // уникален
	APISecret     string    `json:"-" db:"api_secret"`          // зашифрован
	APIPassphrase string    `json:"-" db:"api_passphrase"`      // зашифрован
	APIType       string    `json:"api_type" db:"api_type"`     // "future"
	Group         string    `json:"group,omitempty" db:"group_label"` // опциональная группировка аккаунтов
	Sandbox       bool      `json:"sandbox" db:"sandbox"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	ModifiedAt    time.Time `json:"modified_at" db:"modified_at"`
}

// Типы аккаунтов
const (
	AccountTypeFuture = "future"
)
