// Package validate plugs go-playground/validator into echo so handlers can
// call c.Validate(&req) after c.Bind(&req). Failures come back as
// *apierr.Error with one Detail per offending field, keyed by JSON name.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/medrec/medrec/internal/platform/apierr"
)

// DateLayouts are the accepted encodings for calendar dates and instants.
var DateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation("date_or_datetime", func(fl validator.FieldLevel) bool {
		_, ok := ParseDate(fl.Field().String())
		return ok
	}); err != nil {
		panic(fmt.Sprintf("validate: register date_or_datetime: %v", err))
	}
	return &Validator{v: v}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierr.BadRequest(err.Error())
	}
	details := make([]apierr.Detail, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, apierr.Detail{
			Field: fieldPath(fe),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}
	return apierr.Validation(details)
}

// fieldPath drops the top-level struct name from the namespace so
// "CreatePredictionRequest.model.name" becomes "model.name".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// ParseDate accepts RFC 3339 instants and bare YYYY-MM-DD dates.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
