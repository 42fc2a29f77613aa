package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrColorNotInMatrix        = errors.New("color is not part of this product")
	ErrInvalidVariantField     = errors.New("variant field must be price or quantity")
	ErrImageIndexOutOfRange    = errors.New("image index out of range")
	ErrRowIndexOutOfRange      = errors.New("import row index out of range")
	ErrInvalidImportTransition = errors.New("import batch cannot move to that state")
)

// Violation is one failed validation rule.
type Violation struct {
	Rule    string `json:"rule"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationErrors collects every violated rule of a check. It is returned
// as an error value and never panics or partially applies a mutation.
type ValidationErrors []Violation

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, violation := range v {
		msgs = append(msgs, violation.Message)
	}
	return strings.Join(msgs, "; ")
}

func (v *ValidationErrors) Add(rule, field, format string, args ...interface{}) {
	*v = append(*v, Violation{Rule: rule, Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns nil when nothing was collected.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// Fields flattens the violations into field -> message, first message wins.
func (v ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(v))
	for _, violation := range v {
		key := violation.Field
		if key == "" {
			key = violation.Rule
		}
		if _, ok := out[key]; !ok {
			out[key] = violation.Message
		}
	}
	return out
}

// AsValidationErrors unwraps err into ValidationErrors.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var v ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
