package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/tipsplit-backend/pkg/errors"
)

type splitBody struct {
	PaymentHash string `json:"payment_hash" validate:"required,max=128"`
	TipAmount   int64  `json:"tip_amount" validate:"gte=0"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"tip_amount":-5}`))

	var body splitBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details := typed.Details().(map[string]string)
	assert.Equal(t, "is required", details["payment_hash"])
	assert.Equal(t, "must be greater than or equal to 0", details["tip_amount"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"payment_hash":"p1","extra":true}`))

	var body splitBody
	err := DecodeJSONBody(req, &body)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryTime(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?from=2026-03-01&to=2026-03-02T10:00:00-05:00&bad=yesterday", nil)

	from, err := ParseQueryTime(req, "from")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)

	to, err := ParseQueryTime(req, "to")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), to)

	missing, err := ParseQueryTime(req, "missing")
	require.NoError(t, err)
	assert.True(t, missing.IsZero())

	_, err = ParseQueryTime(req, "bad")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeMemo(t *testing.T) {
	assert.Equal(t, "table", SanitizeMemo("  table 4 ", 5))
	assert.Equal(t, "memo", SanitizeMemo(" memo ", 0))
	assert.Equal(t, "tab le 4", SanitizeMemo("tab\tle\x00 4\u200b", 0))
	assert.Equal(t, "two words", SanitizeMemo("two \n\n  words", 0))
}

func TestSanitizeMemoCutsOnRuneBoundary(t *testing.T) {
	got := SanitizeMemo("café ☕ bill", 6)
	assert.Equal(t, "café ☕", got)
	assert.True(t, utf8.ValidString(SanitizeMemo("ñññññ", 3)))
	assert.Equal(t, "ñññ", SanitizeMemo("ñññññ", 3))
}

type tipBody struct {
	TipRecipient    *string `json:"tip_recipient,omitempty" validate:"omitempty,lnaddress"`
	DisplayCurrency string  `json:"display_currency" validate:"required,currency"`
}

func TestDecodeJSONBodyChecksTipDestinationAndCurrency(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		field   string
		message string
	}{
		{name: "address", payload: `{"tip_recipient":"alice@tips.example","display_currency":"USD"}`},
		{name: "lnurl endpoint", payload: `{"tip_recipient":"https://tips.example/lnurlp/alice","display_currency":"SATS"}`},
		{name: "bare name", payload: `{"tip_recipient":"alice","display_currency":"USD"}`, field: "tip_recipient", message: "must be a lightning address or https LNURL"},
		{name: "plain http", payload: `{"tip_recipient":"http://tips.example/lnurlp/alice","display_currency":"USD"}`, field: "tip_recipient", message: "must be a lightning address or https LNURL"},
		{name: "lowercase currency", payload: `{"display_currency":"usd"}`, field: "display_currency", message: "must be 3 to 8 uppercase letters"},
		{name: "short currency", payload: `{"display_currency":"US"}`, field: "display_currency", message: "must be 3 to 8 uppercase letters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.payload))
			var body tipBody
			err := DecodeJSONBody(req, &body)
			if tc.field == "" {
				require.NoError(t, err)
				return
			}
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			details := typed.Details().(map[string]string)
			assert.Equal(t, tc.message, details[tc.field])
		})
	}
}

func TestDecodeJSONBodyRejectsOversizedAndTrailingPayloads(t *testing.T) {
	huge := `{"payment_hash":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(huge))
	var body splitBody
	err := DecodeJSONBody(req, &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "exceeds")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"payment_hash":"p1"} {"payment_hash":"p2"}`))
	err = DecodeJSONBody(req, &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "single JSON object")
}

func TestIsTipDestinationAllowsBlank(t *testing.T) {
	assert.True(t, IsTipDestination("  "))
	assert.True(t, IsTipDestination("Alice@Tips.Example"))
	assert.False(t, IsTipDestination("https://"))
}
