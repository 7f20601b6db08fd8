package validator

import (
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/types"
	"github.com/go-playground/validator/v10"
)

var validate = NewValidator()

// NewValidator returns a validator with the finance tags registered:
// plugin_kind accepts the enabled billing models only.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("plugin_kind", func(fl validator.FieldLevel) bool {
		return types.PluginKind(fl.Field().String()).Validate() == nil
	})
	return v
}

// ValidateRequest validates a request struct using its `validate` tags
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	details := make(map[string]any)
	var fieldErrs validator.ValidationErrors
	if ierr.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			details[fe.Field()] = fe.Tag()
		}
	}
	return ierr.WithError(err).
		WithHint("Request validation failed").
		WithReportableDetails(details).
		Mark(ierr.ErrValidation)
}
