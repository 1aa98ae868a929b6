package api

import (
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/sirupsen/logrus"
)

func requestLogger(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"url":      r.URL.String(),
				"status":   m.Code,
				"bytes":    m.Written,
				"duration": m.Duration,
			}).Info("handled")
		})
	}
}
