package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/tipsplit-backend/pkg/errors"
)

const (
	defaultTimeout              = 20 * time.Second
	defaultInvoiceExpiry        = time.Hour
	responseBodyReadLimit int64 = 1024
	paymentsPath                = "/api/v1/payments"
	decodePath                  = "/api/v1/payments/decode"
	lnurlPayTag                 = "payRequest"
	msatPerSat                  = 1000
)

var (
	errBaseURLRequired  = errors.New("lightning base url is required")
	errAdminKeyRequired = errors.New("lightning admin key is required")
)

// Invoice is an issued payment request. PaymentHash is the key settlements are correlated on.
type Invoice struct {
	PaymentHash string
	Bolt11      string
}

// Client talks to an LNbits-compatible wallet API: invoices are created on the wallet,
// outbound transfers pay invoices fetched from the recipient's LNURL-pay endpoint.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	adminKey      string
	invoiceKey    string
	invoiceExpiry time.Duration
	lnurlScheme   string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithInvoiceKey sets the read-only key used for invoice creation.
func WithInvoiceKey(key string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			c.invoiceKey = trimmed
		}
	}
}

// WithInvoiceExpiry sets how long issued invoices stay payable.
func WithInvoiceExpiry(expiry time.Duration) Option {
	return func(c *Client) {
		if expiry > 0 {
			c.invoiceExpiry = expiry
		}
	}
}

// WithLNURLScheme overrides the scheme used to resolve Lightning addresses.
func WithLNURLScheme(scheme string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(scheme); trimmed != "" {
			c.lnurlScheme = trimmed
		}
	}
}

// NewClient builds the wallet client.
func NewClient(baseURL, adminKey string, opts ...Option) (*Client, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, errBaseURLRequired
	}
	trimmedKey := strings.TrimSpace(adminKey)
	if trimmedKey == "" {
		return nil, errAdminKeyRequired
	}

	client := &Client{
		httpClient:    &http.Client{Timeout: defaultTimeout},
		baseURL:       trimmedURL,
		adminKey:      trimmedKey,
		invoiceExpiry: defaultInvoiceExpiry,
		lnurlScheme:   "https",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.invoiceKey == "" {
		client.invoiceKey = client.adminKey
	}
	return client, nil
}

// CreateInvoice issues an incoming invoice for amount (sats).
func (c *Client) CreateInvoice(ctx context.Context, amount int64, memo string) (Invoice, error) {
	if c == nil {
		return Invoice{}, pkgerrors.New(pkgerrors.CodeDependency, "lightning client not configured")
	}
	if amount <= 0 {
		return Invoice{}, pkgerrors.New(pkgerrors.CodeValidation, "invoice amount must be positive")
	}

	body := map[string]any{
		"out":    false,
		"amount": amount,
		"unit":   "sat",
		"memo":   memo,
		"expiry": int64(c.invoiceExpiry.Seconds()),
	}
	var resp struct {
		PaymentHash    string `json:"payment_hash"`
		PaymentRequest string `json:"payment_request"`
		Bolt11         string `json:"bolt11"`
	}
	if err := c.postWallet(ctx, paymentsPath, c.invoiceKey, body, &resp, "create invoice", pkgerrors.CodeDependency); err != nil {
		return Invoice{}, err
	}

	bolt11 := resp.PaymentRequest
	if bolt11 == "" {
		bolt11 = resp.Bolt11
	}
	if resp.PaymentHash == "" || bolt11 == "" {
		return Invoice{}, pkgerrors.New(pkgerrors.CodeDependency, "create invoice response missing payment hash or request")
	}
	return Invoice{PaymentHash: resp.PaymentHash, Bolt11: bolt11}, nil
}

// PaymentRequest is an outbound invoice resolved from a recipient's LNURL-pay
// endpoint. Paying the same request twice can never move funds twice, so a
// transfer leg resolves once and retries PayRequest with the same value.
type PaymentRequest struct {
	Bolt11      string
	PaymentHash string
}

// SendBaseTransfer pays amount (sats) to the merchant destination.
func (c *Client) SendBaseTransfer(ctx context.Context, destination string, amount int64) (string, error) {
	return c.payAddress(ctx, destination, amount, "")
}

// SendTipTransfer pays amount (sats) to the gratuity recipient address.
func (c *Client) SendTipTransfer(ctx context.Context, address string, amount int64, memo string) (string, error) {
	return c.payAddress(ctx, address, amount, memo)
}

func (c *Client) payAddress(ctx context.Context, address string, amount int64, comment string) (string, error) {
	req, err := c.ResolvePayment(ctx, address, amount, comment)
	if err != nil {
		return "", err
	}
	return c.PayRequest(ctx, req)
}

// ResolvePayment fetches an invoice for amount (sats) from destination and
// decodes its payment hash on the wallet.
func (c *Client) ResolvePayment(ctx context.Context, destination string, amount int64, comment string) (PaymentRequest, error) {
	if c == nil {
		return PaymentRequest{}, pkgerrors.New(pkgerrors.CodeDependency, "lightning client not configured")
	}
	if amount <= 0 {
		return PaymentRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "transfer amount must be positive")
	}

	endpoint, err := c.lnurlEndpoint(destination)
	if err != nil {
		return PaymentRequest{}, err
	}
	bolt11, err := c.fetchPayRequest(ctx, endpoint, amount, comment)
	if err != nil {
		return PaymentRequest{}, err
	}

	var decoded struct {
		PaymentHash string `json:"payment_hash"`
	}
	if err := c.postWallet(ctx, decodePath, c.invoiceKey, map[string]any{"data": bolt11}, &decoded, "decode invoice", pkgerrors.CodeDependency); err != nil {
		return PaymentRequest{}, err
	}
	if decoded.PaymentHash == "" {
		return PaymentRequest{}, pkgerrors.New(pkgerrors.CodeDependency, "decode invoice response missing payment hash")
	}
	return PaymentRequest{Bolt11: bolt11, PaymentHash: decoded.PaymentHash}, nil
}

// PayRequest pays req unless the wallet already settled it. A wallet that
// accepted the payment but answered with an unreadable body yields
// CodeIndeterminate, which callers must not retry.
func (c *Client) PayRequest(ctx context.Context, req PaymentRequest) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "lightning client not configured")
	}
	if req.Bolt11 == "" || req.PaymentHash == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment request is incomplete")
	}

	state, err := c.paymentState(ctx, req.PaymentHash)
	if err != nil {
		return "", err
	}
	switch state {
	case paymentSettled:
		return req.PaymentHash, nil
	case paymentInFlight:
		return "", pkgerrors.New(pkgerrors.CodeDependency, "payment in flight").WithPaymentHash(req.PaymentHash)
	}

	var resp struct {
		PaymentHash string `json:"payment_hash"`
		CheckingID  string `json:"checking_id"`
	}
	if err := c.postWallet(ctx, paymentsPath, c.adminKey, map[string]any{"out": true, "bolt11": req.Bolt11}, &resp, "pay invoice", pkgerrors.CodeIndeterminate); err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			typed.WithPaymentHash(req.PaymentHash)
		}
		return "", err
	}
	switch {
	case resp.PaymentHash != "":
		return resp.PaymentHash, nil
	case resp.CheckingID != "":
		return resp.CheckingID, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeIndeterminate, "pay invoice response missing payment hash").WithPaymentHash(req.PaymentHash)
}

type paymentStatus int

const (
	paymentUnknown paymentStatus = iota
	paymentInFlight
	paymentSettled
)

// paymentState reports what the wallet knows about an outgoing payment. A 404
// or a failed payment both mean it is safe to pay.
func (c *Client) paymentState(ctx context.Context, hash string) (paymentStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+paymentsPath+"/"+url.PathEscape(hash), nil)
	if err != nil {
		return paymentUnknown, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build payment status request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Api-Key", c.adminKey)

	var resp struct {
		Paid   bool   `json:"paid"`
		Status string `json:"status"`
	}
	err = c.do(httpReq, &resp, "payment status", pkgerrors.CodeDependency)
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusNotFound {
		return paymentUnknown, nil
	}
	if err != nil {
		return paymentUnknown, err
	}

	switch {
	case resp.Paid, strings.EqualFold(resp.Status, "success"):
		return paymentSettled, nil
	case strings.EqualFold(resp.Status, "pending"):
		return paymentInFlight, nil
	}
	return paymentUnknown, nil
}

// lnurlEndpoint maps a Lightning address (user@domain) or an explicit LNURL-pay URL
// to the URL that returns the payRequest metadata.
func (c *Client) lnurlEndpoint(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if strings.HasPrefix(trimmed, "https://") || strings.HasPrefix(trimmed, "http://") {
		return trimmed, nil
	}
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 || at == len(trimmed)-1 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid lightning address %q", address))
	}
	user, domain := trimmed[:at], trimmed[at+1:]
	return fmt.Sprintf("%s://%s/.well-known/lnurlp/%s", c.lnurlScheme, domain, url.PathEscape(strings.ToLower(user))), nil
}

func (c *Client) fetchPayRequest(ctx context.Context, endpoint string, amount int64, comment string) (string, error) {
	var meta struct {
		Tag            string `json:"tag"`
		Callback       string `json:"callback"`
		MinSendable    int64  `json:"minSendable"`
		MaxSendable    int64  `json:"maxSendable"`
		CommentAllowed int    `json:"commentAllowed"`
		Status         string `json:"status"`
		Reason         string `json:"reason"`
	}
	if err := c.getJSON(ctx, endpoint, &meta, "resolve lnurl-pay"); err != nil {
		return "", err
	}
	if strings.EqualFold(meta.Status, "ERROR") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("lnurl-pay rejected: %s", meta.Reason))
	}
	if meta.Tag != lnurlPayTag || meta.Callback == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "destination is not an lnurl-pay endpoint")
	}

	msat := amount * msatPerSat
	if (meta.MinSendable > 0 && msat < meta.MinSendable) || (meta.MaxSendable > 0 && msat > meta.MaxSendable) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount %d msat outside sendable range [%d, %d]", msat, meta.MinSendable, meta.MaxSendable))
	}

	callback, err := url.Parse(meta.Callback)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse lnurl-pay callback")
	}
	q := callback.Query()
	q.Set("amount", strconv.FormatInt(msat, 10))
	if comment != "" && meta.CommentAllowed > 0 {
		if len(comment) > meta.CommentAllowed {
			comment = comment[:meta.CommentAllowed]
		}
		q.Set("comment", comment)
	}
	callback.RawQuery = q.Encode()

	var pay struct {
		PR     string `json:"pr"`
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := c.getJSON(ctx, callback.String(), &pay, "fetch lnurl-pay invoice"); err != nil {
		return "", err
	}
	if strings.EqualFold(pay.Status, "ERROR") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("lnurl-pay callback rejected: %s", pay.Reason))
	}
	if pay.PR == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "lnurl-pay callback returned no invoice")
	}
	return pay.PR, nil
}

func (c *Client) postWallet(ctx context.Context, path, key string, body any, out any, op string, undecodable pkgerrors.Code) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal "+op+" request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+op+" request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", key)
	return c.do(httpReq, out, op, undecodable)
}

func (c *Client) getJSON(ctx context.Context, target string, out any, op string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build "+op+" request")
	}
	httpReq.Header.Set("Accept", "application/json")
	return c.do(httpReq, out, op, pkgerrors.CodeDependency)
}

// statusError is a non-2xx wallet answer.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string   { return fmt.Sprintf("status %d: %s", e.status, e.body) }
func (e *statusError) StatusCode() int { return e.status }

// do executes the request. Transport failures and 5xx answers are dependency errors
// (retryable); other non-2xx answers are treated as permanent rejections. A 2xx
// body that does not decode is reported with the undecodable code.
func (c *Client) do(req *http.Request, out any, op string, undecodable pkgerrors.Code) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+op+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		cause := &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
		code := pkgerrors.CodeDependency
		if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout {
			code = pkgerrors.CodeValidation
		}
		return pkgerrors.Wrap(code, cause, op+" request failed")
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(undecodable, err, "decode "+op+" response")
	}
	return nil
}
