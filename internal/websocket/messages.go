package websocket

import (
	"time"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeOrderUpdate - итог размещения ордера на одном аккаунте.
	// Отправляется по мере завершения каждого аккаунта, не дожидаясь
	// остальных.
	MessageTypeOrderUpdate MessageType = "orderUpdate"

	// MessageTypeCancelUpdate - отмена ордера или массовая отмена по символу
	MessageTypeCancelUpdate MessageType = "cancelUpdate"

	// MessageTypeStatsUpdate - сводка открытых ордеров по аккаунтам
	MessageTypeStatsUpdate MessageType = "statsUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// OrderUpdateData - итог размещения на одном аккаунте
type OrderUpdateData struct {
	AccountID   int64  `json:"account_id"`
	AccountName string `json:"account_name"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Size        string `json:"size"`
	Price       string `json:"price,omitempty"`
	Leverage    int    `json:"leverage"`
	OrderID     string `json:"order_id,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	Attempts    int    `json:"attempts"`
}

// OrderUpdateMessage - сообщение об итоге размещения
type OrderUpdateMessage struct {
	BaseMessage
	Data *OrderUpdateData `json:"data"`
}

// CancelUpdateData - событие отмены
type CancelUpdateData struct {
	AccountID   int64  `json:"account_id,omitempty"`
	AccountName string `json:"account_name,omitempty"`
	Symbol      string `json:"symbol"`
	OrderID     string `json:"order_id,omitempty"`
	// Cancelled - сколько ордеров отменено (для массовой отмены)
	Cancelled int    `json:"cancelled,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CancelUpdateMessage - сообщение об отмене
type CancelUpdateMessage struct {
	BaseMessage
	Data *CancelUpdateData `json:"data"`
}

// StatsUpdateMessage - сообщение со сводкой открытых ордеров
type StatsUpdateMessage struct {
	BaseMessage
	Data interface{} `json:"data"`
}

// ============ Фабричные функции для создания сообщений ============

// NewOrderUpdateMessage создает сообщение об итоге размещения
func NewOrderUpdateMessage(data *OrderUpdateData) *OrderUpdateMessage {
	return &OrderUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeOrderUpdate,
			Timestamp: time.Now(),
		},
		Data: data,
	}
}

// NewCancelUpdateMessage создает сообщение об отмене
func NewCancelUpdateMessage(data *CancelUpdateData) *CancelUpdateMessage {
	return &CancelUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeCancelUpdate,
			Timestamp: time.Now(),
		},
		Data: data,
	}
}

// NewStatsUpdateMessage создает сообщение со сводкой
func NewStatsUpdateMessage(stats interface{}) *StatsUpdateMessage {
	return &StatsUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeStatsUpdate,
			Timestamp: time.Now(),
		},
		Data: stats,
	}
}
