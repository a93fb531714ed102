// Package validate holds side-effect free input checks. Each check returns a
// Result carrying a human readable reason on failure.
package validate

import (
	"fmt"
	"math"
	"net/mail"
	"slices"
	"strings"

	"github.com/fjod/storefront/internal/apperr"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Result struct {
	OK     bool
	Reason string
}

var pass = Result{OK: true}

func fail(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

func Required(field, value string) Result {
	if strings.TrimSpace(value) == "" {
		return fail("%s is required", field)
	}
	return pass
}

func MinInt(field string, value, min int) Result {
	if value < min {
		return fail("%s must be at least %d", field, min)
	}
	return pass
}

func RangeInt(field string, value, min, max int) Result {
	if value < min || value > max {
		return fail("%s must be between %d and %d", field, min, max)
	}
	return pass
}

// MinFloat also rejects NaN and infinities.
func MinFloat(field string, value, min float64) Result {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fail("%s must be a finite number", field)
	}
	if value < min {
		return fail("%s cannot be less than %g", field, min)
	}
	return pass
}

func OneOf(field, value string, allowed []string) Result {
	if !slices.Contains(allowed, value) {
		return fail("%s must be one of %s", field, strings.Join(allowed, ", "))
	}
	return pass
}

func NonEmptyList(field string, values []string) Result {
	if len(values) == 0 {
		return fail("at least one %s is required", field)
	}
	return pass
}

func Email(field, value string) Result {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != strings.TrimSpace(value) {
		return fail("%s must be a valid email address", field)
	}
	return pass
}

func ObjectID(field, value string) Result {
	if !primitive.IsValidObjectID(value) {
		return fail("invalid %s", field)
	}
	return pass
}

// All returns the first failing result as an InvalidInput error.
func All(results ...Result) error {
	for _, r := range results {
		if !r.OK {
			return apperr.InvalidInput(r.Reason)
		}
	}
	return nil
}

// ParseObjectID validates and converts a hex id.
func ParseObjectID(field, value string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return primitive.NilObjectID, apperr.InvalidInput(fmt.Sprintf("invalid %s", field))
	}
	return id, nil
}
