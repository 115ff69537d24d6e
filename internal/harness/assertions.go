package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/capsule/internal/diag"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Index    int
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertions[%d] %s: expected %s, got %s", e.Index, e.Type, e.Expected, e.Actual)
}

// Check evaluates every assertion of s against r and returns one error per
// failed assertion.
func Check(s *Scenario, r *Result) []error {
	var errs []error
	for i, a := range s.Assertions {
		if err := checkAssertion(i, a, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func checkAssertion(index int, a Assertion, r *Result) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Index: index, Type: a.Type, Expected: expected, Actual: actual}
	}

	switch a.Type {
	case AssertAccepted:
		if !r.OK {
			return fail("accepted", "rejected: "+firstError(r))
		}
	case AssertRejected:
		if r.OK {
			return fail("rejected", "accepted")
		}
	case AssertDiagnosticCount:
		if n := r.Count(a.Code); n != a.Count {
			return fail(fmt.Sprintf("%d %s", a.Count, a.Code), fmt.Sprintf("%d", n))
		}
	case AssertOutputContains, AssertOutputAbsent:
		out := r.JS
		if a.Output == "css" {
			out = r.CSS
		}
		found := strings.Contains(out, a.Text)
		if a.Type == AssertOutputContains && !found {
			return fail(fmt.Sprintf("%s containing %q", a.Output, a.Text), fmt.Sprintf("%q", out))
		}
		if a.Type == AssertOutputAbsent && found {
			return fail(fmt.Sprintf("%s without %q", a.Output, a.Text), fmt.Sprintf("%q", out))
		}
	default:
		return fail("known assertion type", a.Type)
	}
	return nil
}

func firstError(r *Result) string {
	for _, m := range r.Messages {
		if m.Level >= diag.LevelError {
			return m.Error()
		}
	}
	return "no error messages"
}
