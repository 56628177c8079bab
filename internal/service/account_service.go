package service

import (
	"errors"
	"fmt"

	"kucoinmanager/internal/exchange"
	"kucoinmanager/internal/models"
	"kucoinmanager/pkg/crypto"
)

// Ошибки сервиса аккаунтов
var (
	ErrInvalidAccountName = errors.New("account name is required")
	ErrInvalidCredentials = errors.New("api key, secret and passphrase are required")
)

// AccountService - бизнес-логика управления суб-аккаунтами.
// Секрет и passphrase шифруются AES-256-GCM перед сохранением; API ключ
// хранится открыто - по нему работает уникальность и поиск.
type AccountService struct {
	repo          AccountRepositoryInterface
	encryptionKey []byte
}

// NewAccountService создает новый экземпляр сервиса
func NewAccountService(repo AccountRepositoryInterface, encryptionKey []byte) (*AccountService, error) {
	if err := crypto.ValidateKey(encryptionKey); err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	return &AccountService{repo: repo, encryptionKey: encryptionKey}, nil
}

// Create регистрирует аккаунт, шифруя секреты
func (s *AccountService) Create(name, apiKey, apiSecret, apiPassphrase, apiType, group string, sandbox bool) (*models.Account, error) {
	if name == "" {
		return nil, ErrInvalidAccountName
	}
	if apiKey == "" || apiSecret == "" || apiPassphrase == "" {
		return nil, ErrInvalidCredentials
	}
	if apiType == "" {
		apiType = models.AccountTypeFuture
	}

	encryptedSecret, err := crypto.Encrypt(apiSecret, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt api secret: %w", err)
	}
	encryptedPassphrase, err := crypto.Encrypt(apiPassphrase, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt api passphrase: %w", err)
	}

	account := &models.Account{
		Name:          name,
		APIKey:        apiKey,
		APISecret:     encryptedSecret,
		APIPassphrase: encryptedPassphrase,
		APIType:       apiType,
		Group:         group,
		Sandbox:       sandbox,
	}

	if err := s.repo.Create(account); err != nil {
		return nil, err
	}

	return account, nil
}

// Get возвращает аккаунт по ID
func (s *AccountService) Get(id int64) (*models.Account, error) {
	return s.repo.GetByID(id)
}

// List возвращает все аккаунты
func (s *AccountService) List() ([]*models.Account, error) {
	return s.repo.GetAll()
}

// ListByGroup возвращает аккаунты группы
func (s *AccountService) ListByGroup(group string) ([]*models.Account, error) {
	return s.repo.GetByGroup(group)
}

// UpdateSecrets обновляет ключи аккаунта
func (s *AccountService) UpdateSecrets(id int64, apiKey, apiSecret, apiPassphrase string) (*models.Account, error) {
	if apiKey == "" || apiSecret == "" || apiPassphrase == "" {
		return nil, ErrInvalidCredentials
	}

	account, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	encryptedSecret, err := crypto.Encrypt(apiSecret, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt api secret: %w", err)
	}
	encryptedPassphrase, err := crypto.Encrypt(apiPassphrase, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt api passphrase: %w", err)
	}

	account.APIKey = apiKey
	account.APISecret = encryptedSecret
	account.APIPassphrase = encryptedPassphrase

	if err := s.repo.Update(account); err != nil {
		return nil, err
	}

	return account, nil
}

// Delete удаляет аккаунт
func (s *AccountService) Delete(id int64) error {
	return s.repo.Delete(id)
}

// Credentials расшифровывает ключи аккаунта для биржевого клиента.
// Расшифрованные значения живут только в памяти на время операции.
func (s *AccountService) Credentials(account *models.Account) (exchange.Credentials, error) {
	secret, err := crypto.Decrypt(account.APISecret, s.encryptionKey)
	if err != nil {
		return exchange.Credentials{}, fmt.Errorf("decrypt api secret for account %q: %w", account.Name, err)
	}
	passphrase, err := crypto.Decrypt(account.APIPassphrase, s.encryptionKey)
	if err != nil {
		return exchange.Credentials{}, fmt.Errorf("decrypt api passphrase for account %q: %w", account.Name, err)
	}

	return exchange.Credentials{
		Key:        account.APIKey,
		Secret:     secret,
		Passphrase: passphrase,
	}, nil
}
