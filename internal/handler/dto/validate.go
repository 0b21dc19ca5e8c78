package dto

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// customMessages override the stock English translations.
var customMessages = map[string]string{
	"alias":    "{0} may only contain letters, digits, '-' and '_'",
	"datetime": "{0} must be an RFC 3339 timestamp",
	"required": "{0} is required",
}

// Validator checks request DTOs and renders the first failure in English.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

// NewValidator builds a Validator that names fields by their JSON keys.
func NewValidator() (*Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	if err := validate.RegisterValidation("alias", func(fl validator.FieldLevel) bool {
		return aliasPattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, err
	}

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")

	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	for tag, msg := range customMessages {
		err := validate.RegisterTranslation(tag, trans, func(t ut.Translator) error {
			return t.Add(tag, msg, true)
		}, func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(fe.Tag(), fe.Field())
			return s
		})
		if err != nil {
			return nil, err
		}
	}

	return &Validator{validate: validate, trans: trans}, nil
}

// Struct validates s and returns the first failing rule as a readable message.
// It returns "" when s is valid.
func (v *Validator) Struct(s any) string {
	err := v.validate.Struct(s)
	if err == nil {
		return ""
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err.Error()
	}
	return errs[0].Translate(v.trans)
}
