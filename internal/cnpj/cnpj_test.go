package cnpj

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"formatted cnpj", "12.345.678/0001-90", "12345678000190"},
		{"already clean", "12345678000190", "12345678000190"},
		{"cpf with dots", "123.456.789-09", "12345678909"},
		{"letters and digits", "CNPJ: 04.814.563/0001-74", "04814563000174"},
		{"no digits", "n/a", ""},
		{"empty", "", ""},
		{"preserves leading zeros", "00.000.000/0001-91", "00000000000191"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"12.345.678/0001-90", "abc123", "", "00000000000191"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestLengthPredicates(t *testing.T) {
	assert.True(t, IsCNPJ("12345678000190"))
	assert.False(t, IsCNPJ("1234567800019"))  // 13 digits
	assert.False(t, IsCNPJ("123456780001901")) // 15 digits
	assert.False(t, IsCNPJ("1234567800019a"))
	assert.False(t, IsCNPJ(""))

	assert.True(t, IsCPF("12345678909"))
	assert.False(t, IsCPF("12345678000190"))

	assert.True(t, IsRadical("12345678"))
	assert.False(t, IsRadical("1234567"))
	assert.False(t, IsRadical("123456789"))
}

func TestRadical(t *testing.T) {
	assert.Equal(t, "12345678", Radical("12345678000190"))
	assert.Equal(t, "00000000", Radical("00000000000191"))
	assert.Equal(t, "", Radical("1234567"))
	assert.Equal(t, "", Radical(""))
}

func TestHasPattern(t *testing.T) {
	assert.True(t, HasPattern("Empresa X, CNPJ 12.345.678/0001-90, fundada em 1990"))
	assert.True(t, HasPattern("cnpj 12345678000190 ativo"))
	assert.True(t, HasPattern("12.345.678/0001-90"))
	assert.False(t, HasPattern("telefone 11 99999-9999"))
	assert.False(t, HasPattern("sem identificador"))
	assert.False(t, HasPattern(""))
}
