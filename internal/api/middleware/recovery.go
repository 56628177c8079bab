// Package middleware содержит HTTP middleware: recovery, логирование,
// CORS и защиту служебных endpoints.
package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"kucoinmanager/pkg/utils"
)

// Recovery перехватывает panic в handlers, логирует stack trace и
// возвращает клиенту 500, не роняя сервер.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.Error("panic in http handler",
					zap.Any("panic", err),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
