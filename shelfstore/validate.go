// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfstore

import (
	"errors"
	"reflect"

	"github.com/go-playground/validator/v10"
)

// entityValidator wraps go-playground/validator and converts its errors to
// the local ValidationError type.
type entityValidator struct {
	v *validator.Validate
}

func newEntityValidator() *entityValidator {
	v := validator.New()

	// Report field names by their json tag so errors match column names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("json")
		if name == "" {
			return fld.Name
		}
		for i := 0; i < len(name); i++ {
			if name[i] == ',' {
				return name[:i]
			}
		}
		return name
	})

	return &entityValidator{v: v}
}

// Struct validates an entity and returns a ValidationError on failure.
func (ev *entityValidator) Struct(entity string, s any) error {
	err := ev.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Entity: entity,
			Field:  fe.Field(),
			Reason: "failed " + fe.Tag() + " check",
		}
	}
	return &ValidationError{Entity: entity, Reason: err.Error()}
}
