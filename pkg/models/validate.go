package models

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError describes a single envelope field that failed validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InvalidEnvelopeError carries field-level diagnostics for a rejected envelope.
// Surfaced as HTTP 400 by the API layer.
type InvalidEnvelopeError struct {
	Fields []FieldError
}

func (e *InvalidEnvelopeError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "invalid envelope: " + strings.Join(parts, "; ")
}

// IsInvalidEnvelope checks whether err is an envelope validation failure.
func IsInvalidEnvelope(err error) bool {
	var ie *InvalidEnvelopeError
	return errors.As(err, &ie)
}

// ValidateEnvelope checks required fields and applies defaults in place
// (empty SeenAgents, zero HopCount). EventID and CreatedAt are NOT assigned
// here; the ingest pipeline owns those.
func ValidateEnvelope(env *Envelope) error {
	var fields []FieldError

	if env.TraceID == "" {
		fields = append(fields, FieldError{Field: "traceId", Message: "required"})
	}
	if env.SessionKey == "" {
		fields = append(fields, FieldError{Field: "sessionKey", Message: "required"})
	}
	if !env.OriginActorType.Valid() {
		fields = append(fields, FieldError{Field: "originActorType", Message: "must be one of human, agent, system"})
	}
	if env.OriginActorID == "" {
		fields = append(fields, FieldError{Field: "originActorId", Message: "required"})
	}
	if env.Text == "" {
		fields = append(fields, FieldError{Field: "text", Message: "must be non-empty"})
	}
	if env.HopCount < 0 {
		fields = append(fields, FieldError{Field: "hopCount", Message: "must be non-negative"})
	}

	if len(fields) > 0 {
		return &InvalidEnvelopeError{Fields: fields}
	}

	if env.SeenAgents == nil {
		env.SeenAgents = []string{}
	}
	return nil
}
