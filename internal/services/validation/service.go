package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ternarybob/moverwatch/internal/models"
)

// FieldError is one rejected field.
type FieldError struct {
	Field  string
	Reason string
}

// Error lists every rejected field of a result.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Service schema-checks fetch results before they are handed to a model.
type Service struct {
	validate *validator.Validate
}

// NewService creates a validator with the market result rules registered.
func NewService() *Service {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so errors read like the payload
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// The registration only fails for an empty tag or nil func
	_ = v.RegisterValidation("finite", isFinite)

	return &Service{validate: v}
}

func isFinite(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return true
	}
}

// ValidateMover checks a mover record.
func (s *Service) ValidateMover(m *models.Mover) error {
	if m == nil {
		return &Error{Fields: []FieldError{{Field: "mover", Reason: "is required"}}}
	}
	return s.check(m)
}

// ValidateHistory checks a history series.
func (s *Service) ValidateHistory(h *models.HistoryResult) error {
	if h == nil {
		return &Error{Fields: []FieldError{{Field: "history", Reason: "is required"}}}
	}
	return s.check(h)
}

// ValidateNews checks a news result.
func (s *Service) ValidateNews(n *models.NewsResult) error {
	if n == nil {
		return &Error{Fields: []FieldError{{Field: "news", Reason: "is required"}}}
	}
	return s.check(n)
}

func (s *Service) check(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Fields: []FieldError{{Field: "result", Reason: err.Error()}}}
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:  fieldPath(fe.Namespace()),
			Reason: reason(fe),
		})
	}
	return &Error{Fields: fields}
}

// fieldPath drops the root type name: "HistoryResult.data[2024-03-05].close" becomes "data[2024-03-05].close".
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "finite":
		return "must be a finite number"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "min":
		if fe.Kind() == reflect.Map || fe.Kind() == reflect.Slice {
			return "must not be empty"
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must have at most %s items", fe.Param())
	case "datetime":
		return fmt.Sprintf("must be a date in %s layout", fe.Param())
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}
