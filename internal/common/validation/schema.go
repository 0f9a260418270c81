package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ChatRequestSchema only demands that "messages" exists and is an array.
// Elements are forwarded untouched, so they are not constrained here.
const ChatRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["messages"],
  "properties": {
    "messages": { "type": "array" }
  }
}`

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result lists schema violations for one document.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// GetErrorMessages returns a simple list of error messages
func (r *Result) GetErrorMessages() []string {
	messages := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// Summary joins all messages into one line.
func (r *Result) Summary() string {
	return strings.Join(r.GetErrorMessages(), "; ")
}

// Validator checks raw JSON documents against a compiled schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles schemaJSON.
func NewValidator(schemaJSON string) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks document. A document that is not JSON at all is reported
// as a single "(root)" violation rather than an error.
func (v *Validator) Validate(document []byte) *Result {
	res, err := v.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return &Result{
			Valid:  false,
			Errors: []ValidationError{{Field: "(root)", Message: fmt.Sprintf("invalid JSON: %v", err)}},
		}
	}

	out := &Result{Valid: res.Valid()}
	for _, desc := range res.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}
	return out
}

var (
	chatOnce      sync.Once
	chatValidator *Validator
)

// ChatRequest returns the shared validator for relay request bodies.
func ChatRequest() *Validator {
	chatOnce.Do(func() {
		v, err := NewValidator(ChatRequestSchema)
		if err != nil {
			panic(err)
		}
		chatValidator = v
	})
	return chatValidator
}
