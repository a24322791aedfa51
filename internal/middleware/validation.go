package middleware

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/shadowing-api/internal/geo"
	"github.com/jwalitptl/shadowing-api/pkg/errors"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags on gin's validator and
// makes field errors use json names. Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			panic("gin binding validator is not go-playground/validator")
		}
		if err := v.RegisterValidation("lnglat", validateLngLat); err != nil {
			panic(err)
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return fld.Name
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
	})
}

// validateLngLat accepts a [lng, lat] pair inside WGS84 bounds.
func validateLngLat(fl validator.FieldLevel) bool {
	pair, ok := fl.Field().Interface().([2]float64)
	if !ok {
		return false
	}
	return geo.NewPoint(pair[0], pair[1]).Validate() == nil
}

var tagMessages = map[string]string{
	"required":  "is required",
	"uuid":      "must be a UUID",
	"max":       "is too long",
	"gt":        "must be positive",
	"latitude":  "must be a latitude between -90 and 90",
	"longitude": "must be a longitude between -180 and 180",
	"lnglat":    "must be [lng, lat] within valid bounds",
	"eq":        "has an unsupported value",
}

// BindingError turns a gin binding failure into a VALIDATION_ERROR naming the
// offending fields.
func BindingError(err error) *errors.AppError {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.Validation("malformed request", err)
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := tagMessages[fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed %q check", fe.Tag())
		}
		parts = append(parts, fe.Field()+" "+msg)
	}
	return errors.Validation(strings.Join(parts, "; "), err)
}
