package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"

	"kucoinmanager/pkg/crypto"
)

// debugUsername и debugPassword защищают debug endpoints.
// Загружаются из переменных окружения DEBUG_USERNAME и DEBUG_PASSWORD.
// DEBUG_PASSWORD хранится как bcrypt хеш (см. crypto.HashPassword),
// открытый пароль в окружении не живёт.
var (
	debugUsername = os.Getenv("DEBUG_USERNAME")
	debugPassword = os.Getenv("DEBUG_PASSWORD")
)

// DebugAuth защищает debug/metrics endpoints через HTTP Basic Auth.
// Если credentials не настроены, доступ разрешен только в development
// (ENV=development или пустой ENV); в production возвращается 403.
// Имя сравнивается constant-time, пароль проверяется против bcrypt хеша.
func DebugAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if debugUsername == "" || debugPassword == "" {
			if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Debug endpoints disabled. Set DEBUG_USERNAME and DEBUG_PASSWORD.", http.StatusForbidden)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(debugUsername)) == 1
		passMatch := crypto.CheckPassword(pass, debugPassword) == nil

		if !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
