// Command mock-endpoints imitates the Resend email API for local load tests.
// Recipients whose address contains "fail" are rejected with 422, those
// containing "flaky" get a 500, and those containing "slow" wait 3 seconds.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	requestCount  atomic.Int64
	acceptedCount atomic.Int64
	rejectedCount atomic.Int64
)

type sendEmailRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	ReplyTo json.RawMessage   `json:"reply_to,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	r := chi.NewRouter()
	r.Post("/emails", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)

		var req sendEmailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.To) == 0 {
			rejectedCount.Add(1)
			writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid request body")
			return
		}
		to := strings.Join(req.To, ",")

		status := http.StatusOK
		switch {
		case strings.Contains(to, "fail"):
			status = http.StatusUnprocessableEntity
		case strings.Contains(to, "flaky"):
			status = http.StatusInternalServerError
		case strings.Contains(to, "slow"):
			time.Sleep(3 * time.Second)
		}

		logger.Info("email received",
			zap.Int64("n", count),
			zap.String("to", to),
			zap.String("subject", req.Subject),
			zap.String("entity_ref", req.Headers["X-Entity-Ref-ID"]),
			zap.Bool("list_unsubscribe", req.Headers["List-Unsubscribe"] != ""),
			zap.Int("status", status),
		)

		switch status {
		case http.StatusUnprocessableEntity:
			rejectedCount.Add(1)
			writeError(w, status, "validation_error", "recipient rejected")
		case http.StatusInternalServerError:
			rejectedCount.Add(1)
			writeError(w, status, "application_error", "internal server error")
		default:
			acceptedCount.Add(1)
			writeJSON(w, http.StatusOK, map[string]string{"id": uuid.NewString()})
		}
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int64{
			"total_requests": requestCount.Load(),
			"accepted":       acceptedCount.Load(),
			"rejected":       rejectedCount.Load(),
		})
	})

	logger.Info("mock resend server starting", zap.String("port", port))
	logger.Info("  POST /emails  -> 200 {id}, 422 for *fail*, 500 for *flaky*, 3s delay for *slow*")
	logger.Info("  GET  /stats   -> request counters")

	if err := http.ListenAndServe(":"+port, r); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, name, message string) {
	writeJSON(w, status, map[string]interface{}{
		"statusCode": status,
		"name":       name,
		"message":    message,
	})
}
