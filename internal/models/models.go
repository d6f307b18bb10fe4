package models

import (
	"errors"
	"strings"
)

// Error variables for better error handling and testability
var (
	ErrUnknownStage         = errors.New("unknown stage")
	ErrMissingStageScript   = errors.New("script document is missing stage scripts")
	ErrMissingScriptVersion = errors.New("script document version is required")
	ErrEmptyScriptDocument  = errors.New("script document is empty")
)

// FieldIssue describes one failed constraint on a request field.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every field issue found in a request body.
type ValidationError struct {
	Issues []FieldIssue
}

// Add records an issue for field.
func (e *ValidationError) Add(field, message string) {
	e.Issues = append(e.Issues, FieldIssue{Field: field, Message: message})
}

// OrNil returns e when it holds issues, nil otherwise.
func (e *ValidationError) OrNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		msgs[i] = is.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ErrorResponse is the JSON body written for 4xx and 5xx responses.
type ErrorResponse struct {
	Message string       `json:"message"`
	Issues  []FieldIssue `json:"issues,omitempty"`
}

// Error creates an error response with a message.
func Error(message string) ErrorResponse {
	return ErrorResponse{Message: message}
}

// Invalid creates an error response carrying the issues from err when it is a
// *ValidationError.
func Invalid(message string, err error) ErrorResponse {
	resp := ErrorResponse{Message: message}
	var v *ValidationError
	if errors.As(err, &v) {
		resp.Issues = v.Issues
	} else if err != nil {
		resp.Issues = []FieldIssue{{Field: "body", Message: err.Error()}}
	}
	return resp
}
