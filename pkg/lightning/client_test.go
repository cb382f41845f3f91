package lightning

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/tipsplit-backend/pkg/errors"
	"github.com/angelmondragon/tipsplit-backend/pkg/lightning/lightningtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStubClient(t *testing.T, wallet *lightningtest.Wallet) *Client {
	t.Helper()
	client, err := NewClient(wallet.Server.URL, "admin-key",
		WithInvoiceKey("invoice-key"),
		WithLNURLScheme("http"),
		WithHTTPClient(wallet.Server.Client()),
	)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresURLAndKey(t *testing.T) {
	_, err := NewClient("", "key")
	require.ErrorIs(t, err, errBaseURLRequired)

	_, err = NewClient("https://wallet.example", " ")
	require.ErrorIs(t, err, errAdminKeyRequired)

	client, err := NewClient("https://wallet.example/", "key", WithInvoiceExpiry(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "https://wallet.example", client.baseURL)
	assert.Equal(t, "key", client.invoiceKey)
	assert.Equal(t, 10*time.Minute, client.invoiceExpiry)
}

func TestCreateInvoiceUsesInvoiceKey(t *testing.T) {
	wallet := lightningtest.NewWallet(t)
	client := newStubClient(t, wallet)

	invoice, err := client.CreateInvoice(context.Background(), 1100, "table-4")
	require.NoError(t, err)
	assert.Equal(t, "in-table-4", invoice.PaymentHash)
	assert.Equal(t, "lnbc-incoming", invoice.Bolt11)
	assert.Equal(t, []string{"invoice-key"}, wallet.Keys())

	_, err = client.CreateInvoice(context.Background(), 0, "zero")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSendTipTransferResolvesLightningAddress(t *testing.T) {
	wallet := lightningtest.NewWallet(t)
	client := newStubClient(t, wallet)

	transferID, err := client.SendTipTransfer(context.Background(), wallet.Address("Alice"), 100, "thanks for lunch")
	require.NoError(t, err)
	assert.Equal(t, lightningtest.HashOf("lnbc-alice-100000-1"), transferID)
	assert.Equal(t, map[string]string{transferID: "lnbc-alice-100000-1"}, wallet.Settled())
	assert.Equal(t, []string{"thanks f"}, wallet.Comments(), "comment is truncated to commentAllowed")
	assert.Equal(t, []string{"invoice-key", "admin-key", "admin-key"}, wallet.Keys(), "decode, status, pay")
}

func TestResolvePaymentDecodesHash(t *testing.T) {
	wallet := lightningtest.NewWallet(t)
	client := newStubClient(t, wallet)

	req, err := client.ResolvePayment(context.Background(), wallet.Address("alice"), 500, "")
	require.NoError(t, err)
	assert.Equal(t, "lnbc-alice-500000-1", req.Bolt11)
	assert.Equal(t, lightningtest.HashOf(req.Bolt11), req.PaymentHash)
	assert.Zero(t, wallet.PayCalls())

	_, err = client.PayRequest(context.Background(), PaymentRequest{Bolt11: req.Bolt11})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPayRequestGatewayErrorsAreRetryable(t *testing.T) {
	wallet := lightningtest.NewWallet(t)
	wallet.QueueFaults(lightningtest.FaultRejectBeforePay)
	client := newStubClient(t, wallet)
	ctx := context.Background()

	req, err := client.ResolvePayment(ctx, wallet.Address("alice"), 500, "")
	require.NoError(t, err)

	_, err = client.PayRequest(ctx, req)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Equal(t, req.PaymentHash, pkgerrors.PaymentHashOf(err))
	assert.Equal(t, http.StatusBadGateway, pkgerrors.Dump(err).UpstreamStatus)

	transferID, err := client.PayRequest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, req.PaymentHash, transferID)
	assert.Len(t, wallet.Settled(), 1)
}

func TestPayRequestSkipsAlreadySettledPayment(t *testing.T) {
	wallet := lightningtest.NewWallet(t)
	wallet.QueueFaults(lightningtest.FaultErrorAfterPay)
	client := newStubClient(t, wallet)
	ctx := context.Background()

	req, err := client.ResolvePayment(ctx, wallet.Address("alice"), 500, "")
	require.NoError(t, err)

	_, err = client.PayRequest(ctx, req)
	require.True(t, pkgerrors.IsRetryable(err), "502 after settling looks like a gateway failure")

	transferID, err := client.PayRequest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, req.PaymentHash, transferID)
	assert.Equal(t, 1, wallet.PayCalls(), "the retry must see the settled payment instead of paying again")
}

func TestPayRequestUnreadableSuccessIsIndeterminate(t *testing.T) {
	wallet := lightningtest.NewWallet(t)
	wallet.QueueFaults(lightningtest.FaultGarbledAfterPay)
	client := newStubClient(t, wallet)
	ctx := context.Background()

	req, err := client.ResolvePayment(ctx, wallet.Address("alice"), 500, "")
	require.NoError(t, err)

	_, err = client.PayRequest(ctx, req)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIndeterminate))
	assert.False(t, pkgerrors.IsRetryable(err))
	assert.Equal(t, req.PaymentHash, pkgerrors.PaymentHashOf(err))
}

func TestTransferRejectionsArePermanent(t *testing.T) {
	wallet := lightningtest.NewWallet(t)
	wallet.Close("closed")
	client := newStubClient(t, wallet)
	ctx := context.Background()

	_, err := client.SendTipTransfer(ctx, wallet.Address("closed"), 100, "")
	require.Error(t, err)
	assert.False(t, pkgerrors.IsRetryable(err))

	_, err = client.SendTipTransfer(ctx, wallet.Address("alice"), 5000000, "")
	require.Error(t, err, "amount above maxSendable")
	assert.False(t, pkgerrors.IsRetryable(err))

	_, err = client.SendTipTransfer(ctx, "not-an-address", 100, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, wallet.PayCalls())
}

func TestTransportTimeoutIsRetryable(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()

	client, err := NewClient(slow.URL, "admin-key", WithLNURLScheme("http"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.SendBaseTransfer(ctx, "merchant@"+strings.TrimPrefix(slow.URL, "http://"), 100)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
}

func TestLNURLEndpoint(t *testing.T) {
	client := &Client{lnurlScheme: "https"}

	endpoint, err := client.lnurlEndpoint("Bob@tips.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://tips.example.com/.well-known/lnurlp/bob", endpoint)

	endpoint, err = client.lnurlEndpoint("https://pay.example.com/lnurlp/abc")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/lnurlp/abc", endpoint)

	for _, bad := range []string{"", "@example.com", "bob@"} {
		_, err := client.lnurlEndpoint(bad)
		assert.Errorf(t, err, "expected %q to be rejected", bad)
	}
}
