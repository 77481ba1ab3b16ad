package object

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/microcosm-cc/bluemonday"
)

// ErrInvalidObject wraps every validation failure.
var ErrInvalidObject = errors.New("invalid object")

// Validator checks whiteboard objects against their schemas and sanitizes
// their string fields.
type Validator struct {
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// registration only fails for an empty tag or nil func
	_ = v.RegisterValidation("wbcolor", func(fl validator.FieldLevel) bool {
		return IsColor(fl.Field().String())
	})

	return &Validator{
		validate: v,
		// removes all HTML/scripts
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// IsColor accepts "#rgb", "#rrggbb" and "transparent".
func IsColor(s string) bool {
	if s == Transparent {
		return true
	}
	_, err := colorful.Hex(s)
	return err == nil
}

// Validate checks o against its kind's schema and returns a copy with
// identifier and colour strings sanitized. Points and image data are opaque
// payloads and are returned untouched.
func (v *Validator) Validate(o Object) (Object, error) {
	if !o.Kind.Valid() {
		return Object{}, fmt.Errorf("%w: unknown type %q", ErrInvalidObject, o.Kind)
	}
	if !o.Scope().Valid() {
		return Object{}, fmt.Errorf("%w: teamId and boardId are required", ErrInvalidObject)
	}
	if len(o.ID) > MaxIDLength || len(o.TeamID) > MaxIDLength || len(o.BoardID) > MaxIDLength {
		return Object{}, fmt.Errorf("%w: identifier too long", ErrInvalidObject)
	}

	schema := schemaFor(o)
	if schema == nil {
		return Object{}, fmt.Errorf("%w: no schema for type %q", ErrInvalidObject, o.Kind)
	}

	if err := v.validate.Struct(schema); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return Object{}, formatValidationErrors(validationErrors)
		}
		return Object{}, fmt.Errorf("%w: %v", ErrInvalidObject, err)
	}

	o.ID = v.SanitizeString(o.ID)
	o.TeamID = v.SanitizeString(o.TeamID)
	o.BoardID = v.SanitizeString(o.BoardID)
	o.Color = v.SanitizeString(o.Color)
	o.FillColor = v.SanitizeString(o.FillColor)
	o.CreatedBy = v.SanitizeString(o.CreatedBy)
	return o, nil
}

// ValidatePatch checks a patch against the object it will be applied to.
func (v *Validator) ValidatePatch(o Object, p Patch) error {
	_, err := v.Validate(p.Apply(o))
	return err
}

// SanitizeString strips any markup from s.
func (v *Validator) SanitizeString(s string) string {
	if s == "" {
		return s
	}
	return strings.TrimSpace(v.sanitizer.Sanitize(s))
}

// formatValidationErrors reports the first failing field only.
func formatValidationErrors(errs validator.ValidationErrors) error {
	return fmt.Errorf("%w: %s", ErrInvalidObject, formatSingleError(errs[0]))
}

func formatSingleError(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("'%s' is required", field)
	case "min", "max", "gt":
		return fmt.Sprintf("'%s' value out of allowed range", field)
	case "wbcolor":
		return fmt.Sprintf("'%s' must be a hex colour or %q", field, Transparent)
	case "startswith":
		return fmt.Sprintf("'%s' has an unexpected encoding", field)
	default:
		return fmt.Sprintf("'%s' is invalid", field)
	}
}
