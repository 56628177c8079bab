// Package exchange реализует подписанный доступ к KuCoin Futures API.
package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
)

// Credentials - API ключи одного суб-аккаунта
// Передаются расшифрованными, только на время жизни клиента
type Credentials struct {
	Key        string
	Secret     string
	Passphrase string
}

// Заголовки аутентификации KuCoin API
const (
	headerAPIKey        = "KC-API-KEY"
	headerAPISign       = "KC-API-SIGN"
	headerAPITimestamp  = "KC-API-TIMESTAMP"
	headerAPIPassphrase = "KC-API-PASSPHRASE"
	headerAPIKeyVersion = "KC-API-KEY-VERSION"

	// apiKeyVersion - версия API ключей: v2 требует подписанную passphrase
	apiKeyVersion = "2"

	userAgent = "kucoin-manager-go/1.0"
)

// BuildHeaders строит заголовки аутентификации для одного запроса
//
// Протокол KuCoin (API key v2):
//   - строка для подписи = timestamp ++ method ++ requestPath ++ body
//     (конкатенация без разделителей; requestPath включает query string)
//   - KC-API-SIGN = base64(HMAC-SHA256(secret, строка))
//   - KC-API-PASSPHRASE = base64(HMAC-SHA256(secret, passphrase)) -
//     passphrase никогда не передаётся открытым текстом
//
// Функция чистая: при фиксированном timestamp выход полностью детерминирован.
// timestamp обязан быть свежим для каждого запроса - биржа отклоняет
// подписи за пределами replay-окна.
func BuildHeaders(creds Credentials, method, requestPath, body string, timestampMillis int64) map[string]string {
	timestamp := strconv.FormatInt(timestampMillis, 10)

	strToSign := timestamp + method + requestPath + body

	return map[string]string{
		headerAPIKey:        creds.Key,
		headerAPISign:       signHMAC(creds.Secret, strToSign),
		headerAPITimestamp:  timestamp,
		headerAPIPassphrase: signHMAC(creds.Secret, creds.Passphrase),
		headerAPIKeyVersion: apiKeyVersion,
		"Content-Type":      "application/json",
		"User-Agent":        userAgent,
	}
}

// signHMAC возвращает base64(HMAC-SHA256(secret, payload))
func signHMAC(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
