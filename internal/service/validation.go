package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	playground "github.com/go-playground/validator/v10"

	"github.com/sujalbistaa/setor7/internal/apperr"
	"github.com/sujalbistaa/setor7/internal/models"
)

type validator struct {
	v *playground.Validate
}

func newValidator() *validator {
	v := playground.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("category", func(fl playground.FieldLevel) bool {
		return models.Category(fl.Field().String()).Valid()
	})
	return &validator{v: v}
}

// Struct validates in and turns the first failure into InvalidArgument.
func (val *validator) Struct(in any) error {
	err := val.v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs playground.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.InvalidArgument("%s", errorMessage(fe.Field(), fe.Tag(), fe.Param()))
	}
	return apperr.InvalidArgument("invalid input: %v", err)
}

func errorMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s long", field, param)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "category":
		return fmt.Sprintf("%s must be one of: ghosts, haunting, ufo, creature, paranormal, other", field)
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, tag)
	}
}
