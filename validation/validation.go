// Package validation collects per-field violations. Struct tags are checked
// with go-playground/validator; ad hoc checks append to the same map.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/greasedesk/greasedesk/internal/apperr"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Err returns nil when there are no violations, else a validation error.
func (v Violations) Err(message string) error {
	if v.Empty() {
		return nil
	}
	return apperr.Validation(message, v)
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("emailshape", func(fl validator.FieldLevel) bool {
		return IsEmail(fl.Field().String())
	})
	return v
}

// Struct validates s against its `validate` tags and merges failures into v.
func Struct(s any, v Violations) {
	err := validate.Struct(s)
	if err == nil {
		return
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		v["_"] = "invalid"
		return
	}
	for _, fe := range errs {
		field := fe.Field()
		if _, seen := v[field]; seen {
			continue
		}
		v[field] = message(fe)
	}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "emailshape", "email":
		return "invalid_email"
	case "min":
		return "too_short"
	case "max":
		return "too_long"
	case "oneof":
		return "invalid_choice"
	default:
		return "invalid"
	}
}

// IsEmail reports whether s has a basic address shape.
func IsEmail(s string) bool { return emailPattern.MatchString(s) }

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

// MaxBytes records too_long when value exceeds n bytes. Struct tags count
// runes, which is wrong for byte-limited values such as bcrypt input.
func MaxBytes(field, value string, n int, v Violations) {
	if _, seen := v[field]; !seen && len(value) > n {
		v[field] = "too_long"
	}
}

func NonNegativeFloat(field string, val float64, v Violations) {
	if val < 0 {
		v[field] = "must_not_be_negative"
	}
}

func RangeFloat(field string, val, minVal, maxVal float64, v Violations) {
	if val < minVal || val > maxVal {
		v[field] = "out_of_range"
	}
}

// Round2 rounds to two decimal places.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Number accepts a JSON number or a numeric string ("20.00").
type Number struct {
	Value float64
	Set   bool
	Valid bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = Number{}
		return nil
	}
	n.Set = true
	var raw string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	} else {
		raw = string(b)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		n.Valid = false
		return nil
	}
	n.Value, n.Valid = f, true
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Set || !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// NumberOf builds a set, valid Number.
func NumberOf(f float64) Number { return Number{Value: f, Set: true, Valid: true} }

// NumberField records a violation when n is missing or not numeric.
func NumberField(field string, n Number, v Violations) bool {
	if !n.Set {
		v[field] = "required"
		return false
	}
	if !n.Valid {
		v[field] = "must_be_numeric"
		return false
	}
	return true
}
