package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kennyklee/jimmy-rocks/domain"
)

// requestValidator adapts validator/v10 to echo.Validator. Failures come back
// as domain InvalidInput errors with one detail per offending field.
type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(f.Name[:1]) + f.Name[1:]
		}
		return name
	})
	_ = v.RegisterValidation("identity", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || domain.IsKnownUser(s)
	})
	_ = v.RegisterValidation("column", func(fl validator.FieldLevel) bool {
		return domain.ValidColumn(domain.ColumnID(fl.Field().String()))
	})
	return &requestValidator{v: v}
}

func (r *requestValidator) Validate(i any) error {
	err := r.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	details := make([]domain.FieldError, 0, len(verrs))
	seen := make(map[string]struct{}, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if i := strings.IndexByte(field, '['); i >= 0 {
			field = field[:i]
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		details = append(details, domain.FieldError{Field: field, Message: fieldMessage(field, fe)})
	}
	return validationFailed(details...)
}

func fieldMessage(field string, fe validator.FieldError) string {
	element := strings.ContainsRune(fe.Field(), '[')
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		if element {
			return fmt.Sprintf("each tag must be at most %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at most %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.Int {
			return fmt.Sprintf("%s must be an integer >= %s", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "identity":
		return fmt.Sprintf("%s must be one of: %s (or empty)", field, strings.Join(domain.KnownUsers(), ", "))
	case "column":
		ids := domain.ColumnIDs()
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = string(id)
		}
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(names, ", "))
	}
	return field + " is invalid"
}

func validationFailed(details ...domain.FieldError) error {
	return &domain.Error{Kind: domain.ErrInvalidInput, Message: "Validation failed", Details: details}
}
