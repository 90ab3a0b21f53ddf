package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// ValidationError is one failed rule, keyed by the field's JSON name.
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ValidationErrors collects every failed rule of a payload.
type ValidationErrors []ValidationError

// Error joins the human readable messages; it is what clients see in error.message.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "invalid request payload"
	}
	parts := make([]string, len(v))
	for i, failure := range v {
		parts[i] = failure.Message
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct validates a struct using the registered rules. Rule failures come
// back as ValidationErrors; anything else (a nil or non-struct value) is returned as is.
func ValidateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	failures := make(ValidationErrors, 0, len(ve))
	for _, fe := range ve {
		failures = append(failures, ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: describe(fe),
		})
	}
	return failures
}

// RegisterValidation exposes underlying validator custom rules.
func RegisterValidation(tag string, fn validator.Func) error {
	return getValidator().RegisterValidation(tag, fn)
}

func describe(fe validator.FieldError) string {
	field := strings.ReplaceAll(fe.Field(), "_", " ")
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "notblank":
		return field + " must not be blank"
	case "email":
		return field + " must be a valid email address"
	case "uuid4", "uuid":
		return field + " must be a valid UUID"
	case "whatsapp":
		return field + " must be a phone number with 8 to 16 digits"
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, fe.Param(), unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, fe.Param(), unit)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed validation: %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("whatsapp", validWhatsApp)
		_ = validate.RegisterValidation("notblank", notBlank)
	})
	return validate
}

// validWhatsApp accepts an optional leading '+' followed by 8-16 digits; spaces and dashes are ignored.
func validWhatsApp(fl validator.FieldLevel) bool {
	value := strings.TrimPrefix(strings.TrimSpace(fl.Field().String()), "+")

	digits := 0
	for _, r := range value {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	return digits >= 8 && digits <= 16
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
