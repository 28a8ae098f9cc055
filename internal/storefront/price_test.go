package storefront

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMinorUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int64
	}{
		{"4.99", 499},
		{"0.00", 0},
		{"0.009", 0},
		{"0.004", 0},
		{"0.019", 1},
		{"4.999", 499},
		{"12", 1200},
		{"12.5", 1250},
		{".75", 75},
		{"1,234.56", 123456},
		{"-3.10", -310},
	}
	for _, tt := range tests {
		got, err := ParseMinorUnits(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	neg, err := ParseMinorUnits("-0.009")
	require.NoError(t, err)
	assert.Zero(t, neg)

	_, err = ParseMinorUnits("free")
	require.Error(t, err)
	_, err = ParseMinorUnits("")
	require.Error(t, err)
}

func TestPriceUnmarshalDistinguishesStringsFromNumbers(t *testing.T) {
	t.Parallel()

	var v struct {
		Quoted  Price `json:"quoted"`
		Bare    Price `json:"bare"`
		Missing Price `json:"missing"`
		Null    Price `json:"null"`
		Garbage Price `json:"garbage"`
	}
	err := json.Unmarshal([]byte(`{"quoted":"4.99","bare":499,"null":null,"garbage":"call us"}`), &v)
	require.NoError(t, err)

	assert.Equal(t, NewPrice(499), v.Quoted)
	assert.Equal(t, NewPrice(499), v.Bare)
	assert.False(t, v.Missing.Valid)
	assert.False(t, v.Null.Valid)
	assert.False(t, v.Garbage.Valid)
}

func TestFormatMinorUnits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.00", FormatMinorUnits(0))
	assert.Equal(t, "4.99", FormatMinorUnits(499))
	assert.Equal(t, "-0.05", FormatMinorUnits(-5))
	assert.Equal(t, int64(1), MajorToMinor(0.01))
}
