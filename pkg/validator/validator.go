// Package validator wires go-playground/validator with the hospital domain tags.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/hospital-api/internal/model"
)

// FieldError is a single failed rule, keyed by the JSON field name.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Domain holds the custom tags used on request DTOs.
var Domain = map[string]validator.Func{
	"consciousness": func(fl validator.FieldLevel) bool {
		switch model.ConsciousnessLevel(fl.Field().String()).Normalize() {
		case model.ConsciousnessAlert, model.ConsciousnessVerbal,
			model.ConsciousnessPain, model.ConsciousnessUnresponsive:
			return true
		}
		return false
	},
	"category": func(fl validator.FieldLevel) bool {
		return model.TriageCategory(fl.Field().String()).Valid()
	},
	"queue_status": func(fl validator.FieldLevel) bool {
		return model.QueueStatus(fl.Field().String()).Valid()
	},
}

var messages = map[string]string{
	"required":      "Field is required",
	"min":           "Value is too small",
	"max":           "Value is too large",
	"oneof":         "Value is not allowed",
	"consciousness": "Must be one of ALERT, VERBAL, PAIN, UNRESPONSIVE",
	"category":      "Must be one of RED, YELLOW, GREEN, BLACK",
	"queue_status":  "Must be one of WAITING, IN_PROGRESS, COMPLETED, CANCELLED",
}

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

// Register adds the JSON tag-name func and the domain tags to v.
func Register(v *validator.Validate) error {
	v.RegisterTagNameFunc(jsonTagName)
	for tag, fn := range Domain {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %s: %w", tag, err)
		}
	}
	return nil
}

// New returns a standalone validator reading `validate` tags.
func New() *validator.Validate {
	v := validator.New()
	if err := Register(v); err != nil {
		panic(err)
	}
	return v
}

var ginOnce sync.Once

// RegisterGin installs the domain tags on gin's binding validator. Safe to call repeatedly.
func RegisterGin() {
	ginOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			if err := Register(v); err != nil {
				panic(err)
			}
		}
	})
}

// Fields flattens validator errors into FieldErrors. It returns nil for any
// other error.
func Fields(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		msg, ok := messages[e.Tag()]
		if !ok {
			msg = e.Error()
		}
		out = append(out, FieldError{Field: e.Field(), Message: msg})
	}
	return out
}
