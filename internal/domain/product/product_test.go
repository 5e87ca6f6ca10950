package product

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsValidate(t *testing.T) {
	tests := []struct {
		name      string
		fields    Fields
		wantField string
	}{
		{
			name:   "valid",
			fields: Fields{Name: "plate", Price: decimal.RequireFromString("3.00"), Stock: 20},
		},
		{
			name:   "zero price and stock",
			fields: Fields{Name: "free sample", Price: decimal.Zero, Stock: 0},
		},
		{
			name:      "empty name",
			fields:    Fields{Name: "", Price: decimal.NewFromInt(1), Stock: 1},
			wantField: "name",
		},
		{
			name:      "name too long",
			fields:    Fields{Name: strings.Repeat("x", MaxNameLength+1), Price: decimal.NewFromInt(1)},
			wantField: "name",
		},
		{
			name:      "negative price",
			fields:    Fields{Name: "plate", Price: decimal.RequireFromString("-0.01")},
			wantField: "price",
		},
		{
			name:      "too many decimals",
			fields:    Fields{Name: "plate", Price: decimal.RequireFromString("1.005")},
			wantField: "price",
		},
		{
			name:      "price overflow",
			fields:    Fields{Name: "plate", Price: decimal.RequireFromString("100000000")},
			wantField: "price",
		},
		{
			name:      "negative stock",
			fields:    Fields{Name: "plate", Price: decimal.NewFromInt(1), Stock: -1},
			wantField: "stock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fields.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}

func TestValidateStock(t *testing.T) {
	require.NoError(t, ValidateStock(0))
	require.NoError(t, ValidateStock(10))
	require.Error(t, ValidateStock(-5))
}
