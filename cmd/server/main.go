package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"kucoinmanager/internal/api"
	"kucoinmanager/internal/config"
	"kucoinmanager/internal/dispatch"
	"kucoinmanager/internal/exchange"
	"kucoinmanager/internal/repository"
	"kucoinmanager/internal/service"
	"kucoinmanager/internal/websocket"
	"kucoinmanager/pkg/ratelimit"
	"kucoinmanager/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync() //nolint:errcheck

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database",
			zap.String("dsn", cfg.Database.DSNWithoutPassword()),
			zap.Error(err),
		)
	}
	defer db.Close()

	logger.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Инициализация репозиториев
	accountRepo := repository.NewAccountRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	// Сервис аккаунтов с шифрованием API секретов
	accountService, err := service.NewAccountService(accountRepo, []byte(cfg.Security.EncryptionKey))
	if err != nil {
		logger.Fatal("failed to init account service", zap.Error(err))
	}

	// Общие ресурсы биржевого слоя: один HTTP клиент и один семафор
	// на процесс, иначе лимит одновременных запросов не работает
	httpClient := exchange.NewHTTPClient(exchange.DefaultHTTPClientConfig())
	limiter := ratelimit.NewSemaphore(cfg.KuCoin.MaxInFlight)

	// Prometheus метрики исполнения
	metrics := dispatch.NewMetrics(prometheus.DefaultRegisterer)
	dispatch.RegisterInFlightGauge(prometheus.DefaultRegisterer, limiter)

	// Фабрика биржевых клиентов: на каждый аккаунт свой подписывающий
	// клиент поверх общего транспорта и семафора
	factory := func(creds exchange.Credentials, sandbox bool) dispatch.ExchangeClient {
		return exchange.NewClient(creds, sandbox || cfg.KuCoin.Sandbox, httpClient, limiter, logger,
			exchange.WithTimeout(cfg.KuCoin.RequestTimeout))
	}

	// Диспетчер параллельного исполнения
	dispatcher := dispatch.NewDispatcher(factory, dispatch.Config{
		MaxAttempts:    cfg.KuCoin.MaxAttempts,
		InitialBackoff: cfg.KuCoin.InitialBackoff,
		MaxBackoff:     cfg.KuCoin.MaxBackoff,
	}, logger, metrics)

	// Сервис ордеров
	orderService := service.NewOrderService(accountRepo, orderRepo, accountService, dispatcher, factory, logger)

	// WebSocket hub для real-time обновлений
	hub := websocket.NewHub()
	go hub.Run()
	orderService.SetWebSocketHub(hub)

	// Настройка HTTP роутера
	router := api.SetupRoutes(&api.Dependencies{
		AccountService: accountService,
		OrderService:   orderService,
		Hub:            hub,
	})

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	hub.Stop()
	httpClient.Close()

	logger.Info("server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
