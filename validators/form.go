package validators

import (
	"errors"

	"github.com/CorrelAid/registration_uploader/models"
	"github.com/go-playground/validator/v10"
)

const (
	RuleRequired      = "required"
	RuleFirstname     = "firstname_length"
	RuleLastname      = "lastname_length"
	RulePassword      = "password_length"
	RulePasswordMatch = "password_match"
)

var validate = validator.New()

// formRules lists the checks in the order they are reported. Only the first
// failing rule is surfaced.
var formRules = []struct {
	rule  string
	field string
	tag   string
	msg   string
}{
	{RuleFirstname, "Firstname", "min", "First name must be at least 3 characters long"},
	{RuleLastname, "Lastname", "min", "Last name must be at least 3 characters long"},
	{RulePassword, "Password", "min", "Password must be at least 5 characters long"},
	{RulePasswordMatch, "Confpassword", "eqfield", "Passwords do not match"},
}

// ValidateFormDetails checks the form fields and returns the first failing
// rule as a validation FormError.
func ValidateFormDetails(form models.FormDetails) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return models.NewFormError(
			models.WithMessage("Input fields are invalid"),
			models.WithCause(err),
		)
	}

	failed := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return models.NewFormError(
				models.WithRule(RuleRequired),
				models.WithMessage("Input fields should not be empty"),
			)
		}
		failed[fe.StructField()] = fe.Tag()
	}

	for _, r := range formRules {
		if failed[r.field] == r.tag {
			return models.NewFormError(
				models.WithRule(r.rule),
				models.WithMessage(r.msg),
			)
		}
	}

	return models.NewFormError(
		models.WithMessage("Input fields are invalid"),
		models.WithCause(err),
	)
}
