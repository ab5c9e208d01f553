package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// ErrorsToMap flattens validator errors into namespace -> message.
func ErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.StructNamespace()] = fmt.Sprintf("failed on '%s' (value %q)", fe.Tag(), redact(fe))
		}
	} else if err != nil {
		out["error"] = err.Error()
	}
	return out
}

// Describe renders err as one stable, sorted line suitable for a log message or a CLI error.
func Describe(err error) string {
	fields := ErrorsToMap(err)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fields[k])
	}
	return strings.Join(parts, "; ")
}

// secret values must never end up in an error message
func redact(fe validatorv10.FieldError) string {
	if strings.Contains(strings.ToLower(fe.Field()), "password") {
		return "***"
	}
	return fmt.Sprint(fe.Value())
}
