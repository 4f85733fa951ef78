package pricing

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

var validate = newValidator()

// FieldError describes one rejected field using its JSON path.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// ValidationError lists every problem found in a snapshot. It unwraps to ErrInvalidInput.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrInvalidInput.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Rule)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput.Error(), strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Details returns the field list in the shape used by API error bodies.
func (e *ValidationError) Details() []FieldError {
	if e == nil {
		return nil
	}
	return e.Fields
}

// Validator exposes the configured instance so request payloads share the same tag semantics.
func Validator() *validator.Validate {
	return validate
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks a snapshot before pricing. Prices and quantities are never clamped.
func Validate(snapshot OrderSnapshot) error {
	var fields []FieldError
	if err := validate.Struct(snapshot); err != nil {
		fields = FieldErrors(err)
		if fields == nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	fields = append(fields, rosterErrors(snapshot)...)
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// FieldErrors converts a validator error into the API field list. Other errors yield nil.
func FieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: trimRoot(fe.Namespace()), Rule: fe.Tag(), Param: fe.Param()})
	}
	return fields
}

func rosterErrors(snapshot OrderSnapshot) []FieldError {
	var fields []FieldError
	seen := make(map[string]struct{}, len(snapshot.Roster))
	for i, m := range snapshot.Roster {
		id := strings.TrimSpace(m.MemberID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			fields = append(fields, FieldError{Field: fmt.Sprintf("roster[%d].memberId", i), Rule: "unique"})
			continue
		}
		seen[id] = struct{}{}
	}
	if snapshot.IsTeamOrder && len(snapshot.Roster) > 0 {
		jerseys := 0
		for _, item := range snapshot.LineItems {
			if item.Type == TypeJersey {
				jerseys++
			}
		}
		if jerseys != 1 {
			fields = append(fields, FieldError{Field: "lineItems", Rule: "one_jersey", Param: fmt.Sprint(jerseys)})
		}
	}
	return fields
}

func trimRoot(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
