package amount

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTokenAmount(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		decimals uint8
		err      error
	}{
		{"empty", "", 18, ErrEmptyAmount},
		{"spaces", "   ", 18, ErrEmptyAmount},
		{"zero", "0", 18, ErrNonPositive},
		{"zero with decimals", "0.000", 6, ErrNonPositive},
		{"negative", "-1", 18, ErrNonPositive},
		{"garbage", "1.2.3", 18, ErrInvalidAmount},
		{"exponent", "1e3", 18, ErrInvalidAmount},
		{"too precise", "1.1234567", 6, ErrTooManyDecimals},
		{"trailing zeros are fine", "1.1234560000", 6, nil},
		{"integer", "50", 6, nil},
		{"exact precision", "0.000001", 6, nil},
		{"native", "1.5", 18, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTokenAmount(tt.value, tt.decimals)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestToBaseUnits(t *testing.T) {
	wei, err := ToWei("1.5")
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", wei.String())

	usdc, err := ToBaseUnits("50", 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(50_000_000), usdc)

	small, err := ToBaseUnits("0.000001", 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1), small)

	_, err = ToBaseUnits("0.0000001", 6)
	assert.ErrorIs(t, err, ErrTooManyDecimals)
}

func TestFromBaseUnits(t *testing.T) {
	assert.Equal(t, "1.5", FromBaseUnits(big.NewInt(1_500_000), 6))
	assert.Equal(t, "100", FromBaseUnits(big.NewInt(100_000_000), 6))
	assert.Equal(t, "0", FromBaseUnits(nil, 18))

	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", FromBaseUnits(wei, 18))
}

func TestRoundTrip(t *testing.T) {
	for _, v := range []string{"1", "0.5", "123.456789", "0.000000000000000001"} {
		units, err := ToWei(v)
		require.NoError(t, err)
		assert.Equal(t, v, FromBaseUnits(units, 18))
	}
}
