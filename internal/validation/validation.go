// Package validation runs the client-side form checks that must pass before any
// request is sent. Failures are reported as apperror KindValidation errors naming
// the offending JSON field.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"koursa/client/internal/apperror"
)

var (
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	hhmmPattern    = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

var (
	once     sync.Once
	instance *validator.Validate
)

func validate() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			return isoDatePattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
			return hhmmPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		instance = v
	})
	return instance
}

// Struct validates s against its `validate` tags. It returns nil or an *apperror.Error of
// KindValidation describing the first failing field.
func Struct(s any) error {
	err := validate().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.Validation("", err.Error())
	}
	fe := verrs[0]
	return apperror.Validation(fe.Field(), message(fe))
}

// Required returns a validation error for field when value is blank.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperror.Validation(field, field+" is required")
	}
	return nil
}

// IsISODate reports whether s has the YYYY-MM-DD shape.
func IsISODate(s string) bool { return isoDatePattern.MatchString(s) }

// IsHHMM reports whether s has the HH:MM shape.
func IsHHMM(s string) bool { return hhmmPattern.MatchString(s) }

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank", "required_if", "gt":
		return field + " is required"
	case "isodate":
		return field + " must use the YYYY-MM-DD format"
	case "hhmm":
		return field + " must use the HH:MM format"
	case "email":
		return field + " must be a valid email address"
	case "min":
		if fe.Kind() == reflect.Slice {
			return field + " must contain at least " + fe.Param() + " item(s)"
		}
		return field + " must be at least " + fe.Param() + " characters"
	case "eqfield":
		return field + " does not match"
	case "oneof":
		return field + " must be one of " + fe.Param()
	default:
		return field + " is invalid"
	}
}
