package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	dErrors "credreg/pkg/domain-errors"
	s "credreg/pkg/string"
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Messages name the JSON field the caller sent, not the Go field.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return s.ToSnakeCase(f.Name)
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	// rfc3339 accepts an empty string so optional timestamps can use omitempty.
	_ = v.RegisterValidation("rfc3339", func(fl validator.FieldLevel) bool {
		raw := fl.Field().String()
		if raw == "" {
			return true
		}
		_, err := time.Parse(time.RFC3339, raw)
		return err == nil
	})
	return v
}

// Validate checks struct tags and reports every failing field in one
// validation error, in declaration order.
func Validate(req any) error {
	if err := defaultValidator.Struct(req); err != nil {
		return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
	}
	return nil
}

// ErrorMessage renders validator output as "field rule" phrases joined by "; ".
func ErrorMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request body"
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	if field == "" {
		return "invalid request body"
	}
	switch fe.ActualTag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "notblank":
		return field + " must not be blank"
	case "rfc3339":
		return field + " must be an RFC 3339 timestamp"
	}
	return field + " is invalid"
}
