package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{100, "1.00"},
		{2500, "25.00"},
		{1099, "10.99"},
		{123456, "1234.56"},
		{-1050, "-10.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCents(tt.cents))
	}
}

func TestExpirationDate(t *testing.T) {
	assert.Equal(t, "012027", ExpirationDate(1, 2027))
	assert.Equal(t, "122025", ExpirationDate(12, 2025))
}

func TestCountryCode(t *testing.T) {
	assert.Equal(t, "US", CountryCode(""))
	assert.Equal(t, "AU", CountryCode("AU"))
}
