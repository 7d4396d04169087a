package devserver

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// msgEmailTaken matches the backend's uniqueness message.
const msgEmailTaken = "The email has already been taken."

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Report JSON field names rather than Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerTranslation("required", "The {0} field is required.")
	registerTranslation("email", "The {0} must be a valid email address.")
	registerTranslation("max", "The {0} may not be greater than {1} characters.")
	registerTranslation("min", "The {0} must be at least {1} characters.")
	registerTranslation("eqfield", "The {0} confirmation does not match.")
}

// registerTranslation overrides the English text for tag with Laravel's
// wording. {0} is the human field name and {1} the tag parameter.
func registerTranslation(tag, text string) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, humanName(bagKey(fe)), fe.Param())
			return s
		},
	)
}

// bagKey is the error bag entry for fe. Confirmation mismatches are
// reported against the confirmed field.
func bagKey(fe validator.FieldError) string {
	if fe.Tag() == "eqfield" {
		return strings.TrimSuffix(fe.Field(), "_confirmation")
	}
	return fe.Field()
}

func humanName(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

// fieldErrors is a Laravel-style error bag.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

// check validates v and returns its field errors, or nil when v is valid.
func check(v any) fieldErrors {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fieldErrors{"request": {err.Error()}}
	}
	out := fieldErrors{}
	for _, fe := range verrs {
		out.add(bagKey(fe), fe.Translate(translator))
	}
	return out
}
