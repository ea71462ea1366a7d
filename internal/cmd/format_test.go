package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dativo-io/piiguard/internal/anonymizer"
)

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "0.85", formatScore(0.85))
	assert.Equal(t, "1.00", formatScore(1))
	assert.Equal(t, "0.33", formatScore(0.3333))
}

func TestFormatOperator(t *testing.T) {
	tests := []struct {
		cfg  anonymizer.OperatorConfig
		want string
	}{
		{anonymizer.OperatorConfig{Type: anonymizer.OperatorReplace, NewValue: "<PERSON>"}, `replace "<PERSON>"`},
		{anonymizer.OperatorConfig{Type: anonymizer.OperatorMask, MaskingChar: "*", CharsToMask: 4}, "mask 4×* from start"},
		{anonymizer.OperatorConfig{Type: anonymizer.OperatorMask, MaskingChar: "#", CharsToMask: 2, FromEnd: true}, "mask 2×# from end"},
		{anonymizer.OperatorConfig{Type: anonymizer.OperatorHash}, "hash sha256"},
		{anonymizer.OperatorConfig{Type: anonymizer.OperatorHash, HashType: anonymizer.HashSHA512}, "hash sha512"},
		{anonymizer.OperatorConfig{Type: anonymizer.OperatorRedact}, "redact"},
		{anonymizer.OperatorConfig{Type: anonymizer.OperatorEncrypt}, "encrypt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatOperator(tt.cfg))
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not set)", maskSecret(""))
	assert.Equal(t, "(set, 6 chars)", maskSecret("secret"))
}
