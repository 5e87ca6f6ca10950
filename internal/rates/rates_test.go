package rates

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocaleDecimal(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want string
	}{
		{in: "350,00", want: "350"},
		{in: "350,5", want: "350.5"},
		{in: "1.234,56", want: "1234.56"},
		{in: "1.234.567,8", want: "1234567.8"},
		{in: " 980,25 ", want: "980.25"},
		{in: "350.75", want: "350.75"},
		{in: "1000", want: "1000"},
	} {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLocaleDecimal(tt.in)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}

	for _, in := range []string{"", "abc", "No Cotiza", "1,2,3"} {
		t.Run("Invalid/"+in, func(t *testing.T) {
			_, err := ParseLocaleDecimal(in)
			require.Error(t, err)
		})
	}
}

func TestFixed(t *testing.T) {
	got, err := Fixed(decimal.NewFromInt(350)).Rate(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(350).Equal(got))

	_, err = Fixed(decimal.Zero).Rate(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}
