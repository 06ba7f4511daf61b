package configstore

import (
	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedDiff renders a line diff of two contents with three lines of
// context. Equal contents produce an empty string.
func UnifiedDiff(from, to, a, b string) (string, error) {
	if a == b {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "a/" + from,
		ToFile:   "b/" + to,
		Context:  3,
	})
}
