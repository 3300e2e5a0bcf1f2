package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/pressplay/payments/internal/logging"
)

// mock-gateway simulates a provider's webhook side for local development:
// POST /fire signs an event envelope with the shared secret and delivers it
// to the payments API's webhook endpoint.
func main() {
	logging.Init("mock-gateway", "info", os.Getenv("APP_ENV"))

	callback := os.Getenv("CALLBACK_URL")
	if callback == "" {
		callback = "http://localhost:8080/api/v1/webhooks/fake"
	}
	secret := os.Getenv("WEBHOOK_SECRET")
	if secret == "" {
		secret = "fake-secret"
	}

	client := &http.Client{Timeout: 10 * time.Second}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
			slog.Error("failed to write health response", "error", err)
		}
	})

	mux.HandleFunc("POST /fire", func(w http.ResponseWriter, r *http.Request) {
		var payload json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		signature := hex.EncodeToString(mac.Sum(nil))

		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, callback, bytes.NewReader(payload))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Signature", signature)

		resp, err := client.Do(req)
		if err != nil {
			slog.Error("webhook delivery failed", "error", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		slog.Info("webhook delivered", "callback", callback, "status", resp.StatusCode)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"delivered": true,
			"status":    resp.StatusCode,
			"signature": signature,
		}); err != nil {
			slog.Error("failed to write fire response", "error", err)
		}
	})

	slog.Info("mock gateway started", "addr", ":8081", "callback", callback)
	if err := http.ListenAndServe(":8081", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
