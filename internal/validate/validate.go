// Package validate checks user input before it reaches the API: login
// credentials against the configured field schema and host forms against
// their struct tags.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gmvreport/gmvdash/internal/config"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return val
}

// Error is a client-side validation failure. No request is sent when one is
// returned.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UserMessage is the text shown next to the form.
func (e *Error) UserMessage() string { return e.Reason }

// Schema validates credential maps.
type Schema struct {
	fields []config.LoginField
}

func NewSchema(fields []config.LoginField) *Schema {
	return &Schema{fields: fields}
}

// Fields returns the schema's fields in display order.
func (s *Schema) Fields() []config.LoginField {
	return s.fields
}

// Credentials checks creds field by field in schema order and returns the
// first failure. Keys not in the schema are ignored. Values are trimmed
// except for secret fields.
func (s *Schema) Credentials(creds map[string]string) error {
	for _, f := range s.fields {
		val := creds[f.Name]
		if !f.Secret {
			val = strings.TrimSpace(val)
		}
		if f.Rules == "" {
			continue
		}
		if err := v.Var(val, f.Rules); err != nil {
			return toError(f.Name, label(f), err)
		}
	}
	return nil
}

// Clean returns a copy of creds restricted to schema fields, with non-secret
// values trimmed.
func (s *Schema) Clean(creds map[string]string) map[string]string {
	out := make(map[string]string, len(s.fields))
	for _, f := range s.fields {
		val := creds[f.Name]
		if !f.Secret {
			val = strings.TrimSpace(val)
		}
		out[f.Name] = val
	}
	return out
}

// Struct validates a tagged struct such as apiclient.HostInput.
func Struct(in any) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &Error{Field: fe.Field(), Reason: reason(humanize(fe.Field()), fe)}
	}
	return fmt.Errorf("validating input: %w", err)
}

func toError(field, lbl string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &Error{Field: field, Reason: reason(lbl, verrs[0])}
	}
	return fmt.Errorf("validating %s: %w", field, err)
}

func reason(lbl string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return lbl + " is required"
	case "email":
		return "Enter a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", lbl, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", lbl, fe.Param())
	case "numeric", "number":
		return lbl + " must contain digits only"
	default:
		return lbl + " is invalid"
	}
}

func label(f config.LoginField) string {
	if f.Label != "" {
		return f.Label
	}
	return humanize(f.Name)
}

// humanize turns "telegram_user_id" into "Telegram user id".
func humanize(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
