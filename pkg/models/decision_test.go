package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionFor(t *testing.T) {
	tests := []struct {
		name       string
		isError    bool
		confidence float64
		want       LoopAction
	}{
		{"error at 0.95 stops", true, 0.95, ActionStop},
		{"error at 0.99 stops", true, 0.99, ActionStop},
		{"error at 0.94 warns", true, 0.94, ActionWarn},
		{"error at 0.71 warns", true, 0.71, ActionWarn},
		{"error at 0.70 is normal", true, 0.70, ActionNormal},
		{"error at 0.50 is normal", true, 0.50, ActionNormal},
		{"non-error at 0.99 is normal", false, 0.99, ActionNormal},
		{"non-error at 0.80 is normal", false, 0.80, ActionNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActionFor(Decision{IsErrorLoop: tt.isError, Confidence: tt.confidence})
			assert.Equal(t, tt.want, got)
		})
	}
}
