// Package lightningtest serves an LNbits-style wallet and LNURL-pay recipients
// over httptest for exercising pkg/lightning.Client end to end.
package lightningtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// PayFault selects how the wallet misbehaves on an outgoing payment.
type PayFault int

const (
	// FaultNone settles the payment and answers normally.
	FaultNone PayFault = iota
	// FaultRejectBeforePay answers 502 without moving funds.
	FaultRejectBeforePay
	// FaultErrorAfterPay settles the payment, then answers 502.
	FaultErrorAfterPay
	// FaultGarbledAfterPay settles the payment, then answers 200 with a body
	// that carries no payment hash.
	FaultGarbledAfterPay
)

// Wallet records every invoice issued by its recipients and every payment it
// settled. Recipients are served under /.well-known/lnurlp/<user>.
type Wallet struct {
	Server *httptest.Server

	mu       sync.Mutex
	faults   []PayFault
	settled  map[string]string
	payCalls int
	issued   int
	comments []string
	keys     []string
	closed   map[string]bool
}

func NewWallet(t *testing.T) *Wallet {
	t.Helper()
	w := &Wallet{settled: make(map[string]string), closed: make(map[string]bool)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/payments", w.handlePay)
	mux.HandleFunc("POST /api/v1/payments/decode", w.handleDecode)
	mux.HandleFunc("GET /api/v1/payments/{hash}", w.handleStatus)
	mux.HandleFunc("GET /.well-known/lnurlp/{user}", w.handleLNURL)
	mux.HandleFunc("GET /lnurlp/{user}/callback", w.handleCallback)

	w.Server = httptest.NewServer(mux)
	t.Cleanup(w.Server.Close)
	return w
}

// Address returns a lightning address hosted by the wallet.
func (w *Wallet) Address(user string) string {
	return user + "@" + strings.TrimPrefix(w.Server.URL, "http://")
}

// Close makes user's LNURL endpoint answer with an ERROR status.
func (w *Wallet) Close(user string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed[strings.ToLower(user)] = true
}

// QueueFaults applies faults to the next outgoing payments, in order.
func (w *Wallet) QueueFaults(faults ...PayFault) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.faults = append(w.faults, faults...)
}

// Settled returns the bolt11 of every settled payment keyed by payment hash.
func (w *Wallet) Settled() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]string, len(w.settled))
	for k, v := range w.settled {
		out[k] = v
	}
	return out
}

// PayCalls counts outgoing pay requests, including faulted ones.
func (w *Wallet) PayCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.payCalls
}

// Issued counts invoices handed out by LNURL callbacks.
func (w *Wallet) Issued() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.issued
}

// Comments returns the comment sent with each LNURL callback.
func (w *Wallet) Comments() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.comments...)
}

// Keys returns the X-Api-Key header of each wallet API call.
func (w *Wallet) Keys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.keys...)
}

// HashOf is the payment hash the wallet decodes for bolt11.
func HashOf(bolt11 string) string {
	return "h-" + bolt11
}

func (w *Wallet) handleLNURL(rw http.ResponseWriter, r *http.Request) {
	user := strings.ToLower(r.PathValue("user"))
	w.mu.Lock()
	closed := w.closed[user]
	w.mu.Unlock()
	if closed {
		writeJSON(rw, http.StatusOK, map[string]any{"status": "ERROR", "reason": "wallet closed"})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"tag":            "payRequest",
		"callback":       w.Server.URL + "/lnurlp/" + user + "/callback",
		"minSendable":    1000,
		"maxSendable":    1000000000,
		"commentAllowed": 8,
	})
}

func (w *Wallet) handleCallback(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	w.issued++
	n := w.issued
	w.comments = append(w.comments, r.URL.Query().Get("comment"))
	w.mu.Unlock()
	bolt11 := "lnbc-" + r.PathValue("user") + "-" + r.URL.Query().Get("amount") + "-" + strconv.Itoa(n)
	writeJSON(rw, http.StatusOK, map[string]any{"pr": bolt11})
}

func (w *Wallet) handleDecode(rw http.ResponseWriter, r *http.Request) {
	var body struct {
		Data string `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Data == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"detail": "invalid invoice"})
		return
	}
	w.recordKey(r)
	writeJSON(rw, http.StatusOK, map[string]any{"payment_hash": HashOf(body.Data)})
}

func (w *Wallet) handleStatus(rw http.ResponseWriter, r *http.Request) {
	w.recordKey(r)
	w.mu.Lock()
	_, paid := w.settled[r.PathValue("hash")]
	w.mu.Unlock()
	if !paid {
		writeJSON(rw, http.StatusNotFound, map[string]any{"detail": "payment does not exist"})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"paid": true, "status": "success"})
}

func (w *Wallet) handlePay(rw http.ResponseWriter, r *http.Request) {
	var body struct {
		Out    bool   `json:"out"`
		Amount int64  `json:"amount"`
		Memo   string `json:"memo"`
		Bolt11 string `json:"bolt11"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"detail": err.Error()})
		return
	}
	w.recordKey(r)

	if !body.Out {
		writeJSON(rw, http.StatusCreated, map[string]any{
			"payment_hash":    "in-" + body.Memo,
			"payment_request": "lnbc-incoming",
		})
		return
	}

	w.mu.Lock()
	w.payCalls++
	fault := FaultNone
	if len(w.faults) > 0 {
		fault, w.faults = w.faults[0], w.faults[1:]
	}
	hash := HashOf(body.Bolt11)
	if fault != FaultRejectBeforePay {
		w.settled[hash] = body.Bolt11
	}
	w.mu.Unlock()

	switch fault {
	case FaultRejectBeforePay, FaultErrorAfterPay:
		writeJSON(rw, http.StatusBadGateway, map[string]any{"detail": "upstream gateway error"})
	case FaultGarbledAfterPay:
		writeJSON(rw, http.StatusOK, map[string]any{"status": "ok"})
	default:
		writeJSON(rw, http.StatusCreated, map[string]any{"payment_hash": hash})
	}
}

func (w *Wallet) recordKey(r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys = append(w.keys, r.Header.Get("X-Api-Key"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
