package cmd

import (
	"fmt"

	"github.com/dativo-io/piiguard/internal/anonymizer"
)

// formatScore prints scores with the same precision as the API.
func formatScore(s float64) string {
	return fmt.Sprintf("%.2f", s)
}

// formatOperator summarizes an operator config in one column.
func formatOperator(c anonymizer.OperatorConfig) string {
	switch c.Type {
	case anonymizer.OperatorReplace:
		return fmt.Sprintf("replace %q", c.NewValue)
	case anonymizer.OperatorMask:
		side := "start"
		if c.FromEnd {
			side = "end"
		}
		return fmt.Sprintf("mask %d×%s from %s", c.CharsToMask, c.MaskingChar, side)
	case anonymizer.OperatorHash:
		h := c.HashType
		if h == "" {
			h = anonymizer.HashSHA256
		}
		return "hash " + h
	}
	return string(c.Type)
}

// maskSecret shows only whether a secret is set and its length.
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	return fmt.Sprintf("(set, %d chars)", len(s))
}
