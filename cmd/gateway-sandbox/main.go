// Command gateway-sandbox is a stand-in payment provider for local
// development and the integration test stack. It issues payment intent ids
// and can simulate a completed payment, returning the signature the real
// provider would attach. It holds no state; anything resembling money is
// fictional.
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/evermart/checkout/internal/gateway"
)

type intentRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type intentResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type simulateRequest struct {
	IntentID string `json:"intentId"`
}

type simulateResponse struct {
	IntentID  string `json:"intentId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

func main() {
	var (
		addr   string
		secret string
	)
	flag.StringVar(&addr, "addr", "0.0.0.0:9090", "listen address")
	flag.StringVar(&secret, "key-secret", "", "HMAC signing secret (or SANDBOX_KEY_SECRET env)")
	flag.Parse()

	if secret == "" {
		secret = os.Getenv("SANDBOX_KEY_SECRET")
	}
	if secret == "" {
		slog.Error("signing secret is required: set --key-secret or SANDBOX_KEY_SECRET")
		os.Exit(1)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/orders", func(w http.ResponseWriter, r *http.Request) {
		var req intentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		resp := intentResponse{
			ID:       "intent_" + uuid.New().String(),
			Amount:   req.Amount,
			Currency: req.Currency,
			Receipt:  req.Receipt,
			Status:   "created",
		}
		slog.Info("intent created",
			slog.String("id", resp.ID), slog.Int64("amount", req.Amount))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	})

	// Pretend the shopper paid: mint a payment id and sign the pair the way
	// the real provider does.
	mux.HandleFunc("POST /v1/simulate", func(w http.ResponseWriter, r *http.Request) {
		var req simulateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IntentID == "" {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		paymentID := "pay_" + uuid.New().String()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(simulateResponse{
			IntentID:  req.IntentID,
			PaymentID: paymentID,
			Signature: gateway.Sign([]byte(secret), req.IntentID, paymentID),
		})
	})

	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	slog.Info("sandbox gateway listening", slog.String("addr", addr))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		slog.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
