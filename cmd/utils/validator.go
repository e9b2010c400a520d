package utils

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that reports json field names and knows
// the timeformat rule.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	RegisterCustomValidations(v)
	return v
}

func RegisterCustomValidations(v *validator.Validate) {
	v.RegisterValidation("timeformat", validateTimeFormat)
}

// validateTimeFormat checks for HH:MM. 24:00 closes the day.
func validateTimeFormat(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "24:00" {
		return true
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}

// TranslateValidationError returns the first failing field and a readable
// message for it.
func TranslateValidationError(err error) (field, message string) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "", err.Error()
	}
	fe := ve[0]
	field = fe.Field()
	switch fe.Tag() {
	case "required":
		return field, field + " is required"
	case "min", "gte":
		return field, field + " must be at least " + fe.Param()
	case "max", "lte":
		return field, field + " must be at most " + fe.Param()
	case "timeformat":
		return field, field + " must be in HH:MM format (e.g. 14:00)"
	case "datetime":
		return field, field + " must be a date in YYYY-MM-DD format"
	case "oneof":
		return field, field + " must be one of: " + fe.Param()
	}
	return field, field + " is invalid"
}
