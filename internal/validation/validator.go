package validation

import (
	"regexp"

	validatorv10 "github.com/go-playground/validator/v10"
)

// identifierPattern matches unquoted PostgreSQL identifiers (max 63 bytes).
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// New returns a configured validator with the custom tags used by this module registered:
//
//	pgident - value must be a plain PostgreSQL identifier, e.g. a table name.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// errors can't happen here: the tag name is non-empty and the func is non-nil
	_ = v.RegisterValidation("pgident", pgIdentifier)

	return v
}

func pgIdentifier(fl validatorv10.FieldLevel) bool {
	return identifierPattern.MatchString(fl.Field().String())
}
