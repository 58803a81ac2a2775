package config

import (
	"reflect"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
)

// Validator is an optional interface configuration structs may
// implement for custom validation. If the struct passed to
// [Loader.Load] implements Validator, its Validate method runs after
// tag-based required validation succeeds.
//
// Errors that are already [*sferr.Error] are returned as-is; other
// errors are wrapped with [sferr.CodeValidation].
type Validator interface {
	Validate() error
}

// validate performs tag-based required validation and then invokes the
// Validator interface if the config struct implements it.
func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}

	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			if _, isSFErr := sferr.AsError(err); isSFErr {
				return err
			}
			return sferr.Wrap(err, sferr.CodeValidation,
				"config: custom validation failed")
		}
	}

	return nil
}

// validateRequired recursively checks that all fields tagged
// `required:"true"` hold non-zero values. The path parameter tracks the
// dotted field path for error messages (e.g., "Postgres.Database").
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if field.Kind() == reflect.Struct {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}

		if sf.Tag.Get("required") != "true" {
			continue
		}

		if field.IsZero() {
			return sferr.Newf(sferr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}

	return nil
}
