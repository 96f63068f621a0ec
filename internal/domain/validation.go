package domain

import (
	"maps"
	"slices"

	"github.com/go-playground/validator/v10"
)

// validate is the package-level validator instance used for struct validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// cloneFeedback creates a deep copy of a category feedback map to prevent aliasing.
// Returns nil for nil input to maintain consistency.
func cloneFeedback(m map[string]CategoryFeedback) map[string]CategoryFeedback {
	if m == nil {
		return nil
	}
	result := make(map[string]CategoryFeedback, len(m))
	maps.Copy(result, m)
	return result
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}
