package models

import "time"

// OrderRecord представляет запись об ордере, размещённом (или не размещённом)
// на одном из аккаунтов
//
// Ровно одна запись на пару (intent, account) — включая неудачные попытки:
// оператор должен видеть, на каких аккаунтах ордер не прошёл и почему.
// После создания меняется только статус (open → canceled) и сообщение об ошибке.
type OrderRecord struct {
	ID           int64     `json:"id" db:"id"`
	OrderID      string    `json:"order_id" db:"order_id"` // ID ордера на бирже, пустой если ордер не был принят
	ClientOid    string    `json:"client_oid" db:"client_oid"`
	AccountID    int64     `json:"account_id" db:"account_id"`
	Symbol       string    `json:"symbol" db:"symbol"` // например XBTUSDTM
	Side         string    `json:"side" db:"side"`     // buy, sell
	Size         string    `json:"size" db:"size"`
	Price        string    `json:"price,omitempty" db:"price"` // пустая цена = market ордер
	Leverage     int       `json:"leverage" db:"leverage"`
	Status       string    `json:"status" db:"status"` // open, canceled, fail
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	ModifiedAt   time.Time `json:"modified_at" db:"modified_at"`
}

// Статусы ордера
const (
	OrderStatusOpen     = "open"
	OrderStatusCanceled = "canceled"
	OrderStatusFailed   = "fail"
)

// Side constants (используются при размещении ордеров)
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Типы ордеров на бирже
const (
	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"
)

// IsLive возвращает true если ордер мог быть принят биржей
// (false для записей, зафиксировавших неудачную попытку размещения)
func (o *OrderRecord) IsLive() bool {
	return o.Status != OrderStatusFailed && o.OrderID != ""
}
