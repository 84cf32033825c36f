// Package middleware provides the HTTP/WS request logging the teacher's
// internal/middleware/logging.go applies to its chi router, adapted here for
// cmd/hostrelay's bare http.ServeMux.
package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Log wraps next, logging method, path, remote addr, and duration for every
// request on logger.
func Log(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Info("http request")
		})
	}
}

// LogWSConnect logs an accepted websocket upgrade.
func LogWSConnect(logger *logrus.Logger, remoteAddr, path string) {
	logger.WithFields(logrus.Fields{"remote": remoteAddr, "path": path}).Info("websocket connected")
}
