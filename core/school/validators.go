package school

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolsaas/core"
)

var (
	// custom validation tags & texts
	termTag     = "term"
	termText    = "the term must be 1, 2 or 3"
	sessionTag  = "session"
	sessionText = "the session must span two consecutive years, e.g. 2024/2025"
)

// InitValidators registers the school validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(termTag, termValidation)
	core.RegisterCustomTranslation(validate, translator, termTag, termText)

	_ = validate.RegisterValidation(sessionTag, sessionValidation)
	core.RegisterCustomTranslation(validate, translator, sessionTag, sessionText)
}

func termValidation(fl validator.FieldLevel) bool {
	return ValidTerm(int(fl.Field().Int()))
}

func sessionValidation(fl validator.FieldLevel) bool {
	return ValidSession(fl.Field().String())
}

// CheckTermAndSession returns a *core.ValidationError unless term & session are
// valid or zero values.
func CheckTermAndSession(term int, session string) error {
	var flds []core.FieldError
	if term != 0 && !ValidTerm(term) {
		flds = append(flds, core.FieldError{Field: termTag, Error: termText})
	}
	if session != "" && !ValidSession(session) {
		flds = append(flds, core.FieldError{Field: sessionTag, Error: sessionText})
	}
	if len(flds) == 0 {
		return nil
	}
	return core.NewValidationError(ErrInvalidTermOrSession, flds...)
}
