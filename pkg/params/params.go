// Package params cleans and validates the option structs that the catalog
// services accept. It runs mold to conform values (trimming, case folding),
// applies struct-tag defaults, and then validates declared bounds,
// translating the first failure into an errcodes validation error.
package params

import (
	"context"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/mold/v4"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/darklitbooks/darklit/pkg/errcodes"
)

type Validator struct {
	conform  *mold.Transformer
	validate *validator.Validate
}

func New() *Validator {
	conform := modifiers.New()
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{conform, validate}
}

// Validate conforms, defaults, and validates the given struct pointer.
// entity names the schema entity the params belong to, so validation
// failures identify what was being created or updated.
func (v *Validator) Validate(ctx context.Context, entity string, i interface{}) error {
	if err := v.conform.Struct(ctx, i); err != nil {
		return errors.WithStack(err)
	}

	if err := defaults.Set(i); err != nil {
		return errors.WithStack(err)
	}

	if err := v.validate.Struct(i); err != nil {
		errs := validator.ValidationErrors{}
		if !errors.As(err, &errs) || len(errs) == 0 {
			return errors.WithStack(err)
		}
		first := errs[0]
		return errcodes.ValidationError(entity, first.Field(), formatValidationError(first))
	}
	return nil
}
