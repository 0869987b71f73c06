package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
	"github.com/angelmondragon/zenergy-backend/pkg/pagination"
)

type withdrawBody struct {
	Amount string `json:"amount" validate:"required,decimal"`
	Method string `json:"payment_method" validate:"omitempty,oneof=COD QR"`
}

func TestDecodeJSONBody(t *testing.T) {
	var body withdrawBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"150000.50","payment_method":"QR"}`))
	require.NoError(t, DecodeJSONBody(req, &body))
	require.Equal(t, "150000.50", body.Amount)
}

func TestDecodeJSONBodyRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"amount":"1","extra":true}`,
		"malformed":     `{"amount":`,
		"not decimal":   `{"amount":"abc"}`,
		"missing":       `{}`,
		"bad enum":      `{"amount":"1","payment_method":"CARD"}`,
	}
	for name, payload := range cases {
		var body withdrawBody
		err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload)), &body)
		require.Error(t, err, name)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), name)
	}
}

func TestParsePagination(t *testing.T) {
	params, err := ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=10&cursor=abc", nil))
	require.NoError(t, err)
	require.Equal(t, pagination.Params{Limit: 10, Cursor: "abc"}, params)

	params, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, pagination.DefaultLimit, params.Limit)

	_, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=1000", nil))
	require.Error(t, err)
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("orderId", value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	got, err := ParseUUIDParam(withParam(id.String()), "orderId")
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = ParseUUIDParam(withParam("nope"), "orderId")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeStringCountsRunes(t *testing.T) {
	require.Equal(t, "Đường", SanitizeString("  Đường Lê Lợi ", 5))
	require.Equal(t, "abc", SanitizeString(" abc ", 0))
}
