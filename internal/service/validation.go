package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/table-reservation/internal/model"
)

// validate checks struct tags on request types. Field names in messages are
// the JSON names the API exposes.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateRequest turns validator failures into a ValidationError listing
// every offending field.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate request: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeField(fe))
	}
	return invalidf("invalid request: %s", strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "unique":
		return fe.Field() + " must not contain duplicates"
	default:
		return fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
	}
}

// validateWindow enforces the temporal invariants of a reservation relative
// to the operation's canonical now.
func validateWindow(start, end, now time.Time) error {
	if start.IsZero() || end.IsZero() {
		return invalidf("starts_at and ends_at are required")
	}
	if start.Before(now) {
		return invalidf("start time %s is in the past", start.UTC().Format(time.RFC3339))
	}
	if !start.Before(end) {
		return invalidf("start time %s must be before end time %s",
			start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	}
	if d := end.Sub(start); d > model.MaxDuration {
		return invalidf("reservation lasts %s, longer than the %s maximum", d, model.MaxDuration)
	}
	return nil
}
