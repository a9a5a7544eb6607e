package serverutils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// Field names in messages follow the json tags clients send.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateRequest checks the validate tags on req and turns the first
// failure into a VALIDATION_ERROR.
func ValidateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return Validation("Invalid request")
	}

	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return Validation(fmt.Sprintf("%s is required", field))
	case "min":
		return Validation(fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
	case "max":
		return Validation(fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
	default:
		return Validation(fmt.Sprintf("%s is invalid", field))
	}
}
