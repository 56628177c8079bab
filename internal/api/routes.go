// Package api настраивает HTTP маршруты и связывает handlers с сервисами.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kucoinmanager/internal/api/handlers"
	"kucoinmanager/internal/api/middleware"
	"kucoinmanager/internal/service"
	"kucoinmanager/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	AccountService *service.AccountService
	OrderService   *service.OrderService
	Hub            *websocket.Hub
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /accounts/
//	│   ├── GET / - список аккаунтов (без секретов)
//	│   ├── POST / - добавить аккаунт
//	│   ├── GET /{id} - один аккаунт
//	│   ├── PUT /{id}/keys - ротация API ключей
//	│   └── DELETE /{id} - удалить аккаунт
//	└── /orders/
//	    ├── GET / - журнал ордеров
//	    ├── POST / - разместить ордер на группе аккаунтов
//	    ├── GET /open - сводка открытых ордеров
//	    ├── POST /cancel-all - массовая отмена по символу
//	    ├── GET /{id} - запись журнала
//	    └── DELETE /{id} - отменить ордер
//
// /ws/stream - WebSocket для real-time обновлений
// /health - liveness probe
// /metrics - Prometheus метрики (защищен DebugAuth)
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var accountHandler *handlers.AccountHandler
	if deps != nil && deps.AccountService != nil {
		accountHandler = handlers.NewAccountHandler(deps.AccountService)
	}

	var orderHandler *handlers.OrderHandler
	if deps != nil && deps.OrderService != nil {
		orderHandler = handlers.NewOrderHandler(deps.OrderService)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Account routes
	if accountHandler != nil {
		api.HandleFunc("/accounts", accountHandler.ListAccounts).Methods("GET")
		api.HandleFunc("/accounts", accountHandler.CreateAccount).Methods("POST")
		api.HandleFunc("/accounts/{id}", accountHandler.GetAccount).Methods("GET")
		api.HandleFunc("/accounts/{id}", accountHandler.DeleteAccount).Methods("DELETE")
		api.HandleFunc("/accounts/{id}/keys", accountHandler.UpdateAccountSecrets).Methods("PUT")
	}

	// Order routes. Статические сегменты регистрируются раньше {id},
	// иначе mux сопоставит "open" с {id}.
	if orderHandler != nil {
		api.HandleFunc("/orders", orderHandler.ListOrders).Methods("GET")
		api.HandleFunc("/orders", orderHandler.PlaceOrder).Methods("POST")
		api.HandleFunc("/orders/open", orderHandler.GetOpenOrders).Methods("GET")
		api.HandleFunc("/orders/cancel-all", orderHandler.CancelAllOrders).Methods("POST")
		api.HandleFunc("/orders/{id}", orderHandler.GetOrder).Methods("GET")
		api.HandleFunc("/orders/{id}", orderHandler.CancelOrder).Methods("DELETE")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Prometheus метрики за Basic Auth
	metrics := router.PathPrefix("/metrics").Subrouter()
	metrics.Use(middleware.DebugAuth)
	metrics.Handle("", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
