package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"kucoinmanager/internal/dispatch"
	"kucoinmanager/internal/repository"
	"kucoinmanager/internal/service"
)

// CancelAllRequest - тело запроса массовой отмены по символу
type CancelAllRequest struct {
	Symbol     string  `json:"symbol"`
	AccountIDs []int64 `json:"account_ids,omitempty"`
	Group      string  `json:"group,omitempty"`
}

// OrderHandler отвечает за исполнение и журнал ордеров
//
// Endpoints:
// - POST /api/v1/orders - размещение ордера на группе аккаунтов
// - GET /api/v1/orders - последние записи журнала
// - GET /api/v1/orders/{id} - одна запись журнала
// - DELETE /api/v1/orders/{id} - отмена ордера по записи журнала
// - POST /api/v1/orders/cancel-all - массовая отмена по символу
// - GET /api/v1/orders/open - сводка открытых ордеров по аккаунтам
type OrderHandler struct {
	orderService service.OrderServiceInterface
}

// NewOrderHandler создает новый OrderHandler
func NewOrderHandler(orderService service.OrderServiceInterface) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// PlaceOrder размещает ордер на всех целевых аккаунтах параллельно
// POST /api/v1/orders
//
// Тело запроса:
//
//	{
//	  "symbol": "XBTUSDTM",
//	  "side": "buy",
//	  "size": "1",
//	  "price": "",            // пусто = market
//	  "leverage": 10,
//	  "account_ids": [1, 2],  // опционально
//	  "group": "alpha"        // опционально
//	}
//
// Ответы:
// - 200 OK: итоги по каждому аккаунту (включая неудачные)
// - 400 Bad Request: некорректные параметры ордера
// - 404 Not Found: ни один аккаунт не подходит под запрос
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req service.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	results, err := h.orderService.PlaceOrder(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrInvalidIntent):
			respondWithError(w, http.StatusBadRequest, "Invalid order parameters", err.Error())
		case errors.Is(err, service.ErrNoTargetAccounts):
			respondWithError(w, http.StatusNotFound, "No matching accounts", err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// ListOrders возвращает последние записи журнала
// GET /api/v1/orders?limit=50&account_id=3
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit parameter", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	if raw := r.URL.Query().Get("account_id"); raw != "" {
		accountID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid account_id parameter", "account_id must be an integer")
			return
		}
		records, err := h.orderService.ListByAccount(accountID, limit)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to list orders", err.Error())
			return
		}
		respondWithJSON(w, http.StatusOK, records)
		return
	}

	records, err := h.orderService.ListRecent(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list orders", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, records)
}

// GetOrder возвращает одну запись журнала
// GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDVar(w, r)
	if !ok {
		return
	}

	record, err := h.orderService.GetRecord(id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found", "")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get order", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, record)
}

// CancelOrder отменяет ордер по записи журнала
// DELETE /api/v1/orders/{id}
//
// Ответы:
// - 200 OK: ордер отменен (или уже был неактивен)
// - 404 Not Found: запись журнала не найдена
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDVar(w, r)
	if !ok {
		return
	}

	if err := h.orderService.CancelOrder(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			respondWithError(w, http.StatusNotFound, "Order not found", "")
		default:
			respondWithError(w, http.StatusBadGateway, "Failed to cancel order", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "Order canceled",
	})
}

// CancelAllOrders отменяет все открытые ордера по символу на целевых аккаунтах
// POST /api/v1/orders/cancel-all
func (h *OrderHandler) CancelAllOrders(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req CancelAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if req.Symbol == "" {
		respondWithError(w, http.StatusBadRequest, "Symbol is required", "")
		return
	}

	summaries, err := h.orderService.CancelAllOrders(r.Context(), req.Symbol, req.AccountIDs, req.Group)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoTargetAccounts):
			respondWithError(w, http.StatusNotFound, "No matching accounts", err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  req.Symbol,
		"results": summaries,
	})
}

// GetOpenOrders возвращает сводку открытых ордеров по аккаунтам
// GET /api/v1/orders/open?symbol=XBTUSDTM&group=alpha
func (h *OrderHandler) GetOpenOrders(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		respondWithError(w, http.StatusBadRequest, "Symbol is required", "pass ?symbol=XBTUSDTM")
		return
	}

	var accountIDs []int64
	for _, raw := range r.URL.Query()["account_id"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid account_id parameter", "account_id must be an integer")
			return
		}
		accountIDs = append(accountIDs, id)
	}

	report, err := h.orderService.GetOpenOrders(r.Context(), symbol, accountIDs, r.URL.Query().Get("group"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoTargetAccounts):
			respondWithError(w, http.StatusNotFound, "No matching accounts", err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

// parseIDVar извлекает числовой {id} из пути запроса
func parseIDVar(w http.ResponseWriter, r *http.Request) (int64, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid order id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
