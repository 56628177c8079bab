package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"kucoinmanager/internal/repository"
	"kucoinmanager/internal/service"
)

// CreateAccountRequest - тело запроса создания аккаунта.
// Секреты приходят в запросе открытым текстом (TLS обязателен),
// шифруются в сервисе и в ответах никогда не возвращаются.
type CreateAccountRequest struct {
	Name          string `json:"name"`
	APIKey        string `json:"api_key"`
	APISecret     string `json:"api_secret"`
	APIPassphrase string `json:"api_passphrase"`
	APIType       string `json:"api_type,omitempty"`
	Group         string `json:"group,omitempty"`
	Sandbox       bool   `json:"sandbox,omitempty"`
}

// UpdateAccountSecretsRequest - тело запроса ротации ключей аккаунта
type UpdateAccountSecretsRequest struct {
	APIKey        string `json:"api_key"`
	APISecret     string `json:"api_secret"`
	APIPassphrase string `json:"api_passphrase"`
}

// AccountHandler отвечает за управление суб-аккаунтами KuCoin
//
// Endpoints:
// - POST /api/v1/accounts - добавление аккаунта
// - GET /api/v1/accounts - список аккаунтов (без секретов)
// - GET /api/v1/accounts/{id} - один аккаунт
// - PUT /api/v1/accounts/{id}/keys - ротация API ключей
// - DELETE /api/v1/accounts/{id} - удаление аккаунта
type AccountHandler struct {
	accountService service.AccountServiceInterface
}

// NewAccountHandler создает новый AccountHandler
func NewAccountHandler(accountService service.AccountServiceInterface) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

// CreateAccount добавляет новый суб-аккаунт
// POST /api/v1/accounts
//
// Ответы:
// - 201 Created: аккаунт добавлен
// - 400 Bad Request: некорректные данные
// - 409 Conflict: API ключ уже зарегистрирован
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	account, err := h.accountService.Create(req.Name, req.APIKey, req.APISecret, req.APIPassphrase, req.APIType, req.Group, req.Sandbox)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAccountName), errors.Is(err, service.ErrInvalidCredentials):
			respondWithError(w, http.StatusBadRequest, "Invalid account data", err.Error())
		case errors.Is(err, repository.ErrDuplicateAPIKey):
			respondWithError(w, http.StatusConflict, "API key already registered", "Each account must use a unique API key")
		default:
			respondWithError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, account)
}

// ListAccounts возвращает все аккаунты (секреты не сериализуются)
// GET /api/v1/accounts?group=alpha
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	var err error
	var accounts interface{}

	if group := r.URL.Query().Get("group"); group != "" {
		accounts, err = h.accountService.ListByGroup(group)
	} else {
		accounts, err = h.accountService.List()
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list accounts", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, accounts)
}

// GetAccount возвращает один аккаунт
// GET /api/v1/accounts/{id}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAccountIDVar(w, r)
	if !ok {
		return
	}

	account, err := h.accountService.Get(id)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			respondWithError(w, http.StatusNotFound, "Account not found", "")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get account", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, account)
}

// UpdateAccountSecrets ротирует API ключи аккаунта
// PUT /api/v1/accounts/{id}/keys
func (h *AccountHandler) UpdateAccountSecrets(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAccountIDVar(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req UpdateAccountSecretsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	account, err := h.accountService.UpdateSecrets(id, req.APIKey, req.APISecret, req.APIPassphrase)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			respondWithError(w, http.StatusBadRequest, "Invalid credentials", err.Error())
		case errors.Is(err, repository.ErrAccountNotFound):
			respondWithError(w, http.StatusNotFound, "Account not found", "")
		case errors.Is(err, repository.ErrDuplicateAPIKey):
			respondWithError(w, http.StatusConflict, "API key already registered", "Each account must use a unique API key")
		default:
			respondWithError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, account)
}

// DeleteAccount удаляет аккаунт
// DELETE /api/v1/accounts/{id}
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAccountIDVar(w, r)
	if !ok {
		return
	}

	if err := h.accountService.Delete(id); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			respondWithError(w, http.StatusNotFound, "Account not found", "")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to delete account", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "Account deleted",
	})
}

// parseAccountIDVar извлекает числовой {id} из пути запроса
func parseAccountIDVar(w http.ResponseWriter, r *http.Request) (int64, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid account id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
