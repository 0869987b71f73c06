package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestComputeTotals(t *testing.T) {
	fee := decimal.NewFromInt(50000)
	rate := decimal.RequireFromString("0.10")

	cases := []struct {
		name     string
		subtotal string
		wantFee  string
		wantTax  string
		want     string
	}{
		{name: "reference order", subtotal: "100000", wantFee: "50000", wantTax: "10000", want: "160000"},
		{name: "empty subtotal skips shipping", subtotal: "0", wantFee: "0", wantTax: "0", want: "0"},
		{name: "tax rounds half up", subtotal: "0.05", wantFee: "50000", wantTax: "0.01", want: "50000.06"},
		{name: "fractional subtotal", subtotal: "1234.565", wantFee: "50000", wantTax: "123.46", want: "51358.03"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeTotals(decimal.RequireFromString(tc.subtotal), fee, rate)
			require.True(t, got.ShippingFee.Equal(decimal.RequireFromString(tc.wantFee)), "fee %s", got.ShippingFee)
			require.True(t, got.Tax.Equal(decimal.RequireFromString(tc.wantTax)), "tax %s", got.Tax)
			require.True(t, got.Total.Equal(decimal.RequireFromString(tc.want)), "total %s", got.Total)
		})
	}
}

func TestRoundHalfUp(t *testing.T) {
	require.Equal(t, "2.68", Round(decimal.RequireFromString("2.675")).StringFixed(2))
	require.Equal(t, "2.67", Round(decimal.RequireFromString("2.6749")).StringFixed(2))
}

func TestParse(t *testing.T) {
	d, err := Parse(" 250000 ")
	require.NoError(t, err)
	require.True(t, d.Equal(decimal.NewFromInt(250000)))

	_, err = Parse("")
	require.Error(t, err)
	_, err = Parse("abc")
	require.Error(t, err)
}
