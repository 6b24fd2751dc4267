package barcode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidEAN13(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"6001009100139", true},
		{"4006381333931", true},
		{"5901234123457", true},
		{"5901234123458", false},
		{"6001009100138", false},
		{"600100910013", false},
		{"60010091001390", false},
		{"60010091001a9", false},
		{"", false},
		{"٠٠٠٠٠٠٠٠٠٠٠٠٠", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ValidEAN13(tc.code), "code %q", tc.code)
	}
}

func TestCheckDigit(t *testing.T) {
	d, err := CheckDigit("600100910013")
	require.NoError(t, err)
	assert.Equal(t, 9, d)

	d, err = CheckDigit("000000000000")
	require.NoError(t, err)
	assert.Equal(t, 0, d)

	_, err = CheckDigit("12345")
	assert.True(t, errors.Is(err, ErrInvalidEAN13))
}

func TestValidateWrapsSentinel(t *testing.T) {
	require.NoError(t, Validate("6001009100139"))
	err := Validate("6001009100130")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEAN13)
}
