package schema

import (
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Text longer than the column limit is cut to exactly the limit; text within
// the limit is stored unchanged.
func TestProperty_AssignTruncation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("over-long text is truncated to exactly the column length", prop.ForAll(
		func(s string) bool {
			w := &widget{}
			if err := Assign(w, "label", s); err != nil {
				return false
			}
			n := utf8.RuneCountInString(s)
			got := utf8.RuneCountInString(*w.Label)
			if n > 8 {
				return got == 8
			}
			return *w.Label == s
		},
		gen.AnyString(),
	))

	properties.Property("truncated text is a prefix of the input", prop.ForAll(
		func(s string) bool {
			w := &widget{}
			if err := Assign(w, "code", s); err != nil {
				return false
			}
			return len(w.Code) <= len(s) && s[:len(w.Code)] == w.Code
		},
		gen.AlphaString(),
	))

	properties.Property("unbounded text is never truncated", prop.ForAll(
		func(s string) bool {
			w := &widget{}
			if err := Assign(w, "notes", s); err != nil {
				return false
			}
			return *w.Notes == s
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
