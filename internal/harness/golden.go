package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/capsule/internal/diag"
)

// Snapshot renders the parts of r compared against golden files: the
// namespace, the gate, diagnostics at Warning level or above, and the
// stylesheet. Spans and the module text are left out so unrelated changes
// to the runtime wrapper do not churn every golden file.
func Snapshot(r *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "namespace: %s\n", r.Namespace)
	fmt.Fprintf(&b, "accepted: %t\n", r.OK)
	b.WriteString("diagnostics:\n")
	for _, m := range r.Messages {
		if m.Level < diag.LevelWarning {
			continue
		}
		fmt.Fprintf(&b, "  %s %s\n", m.Level, m.Type.Code)
	}
	b.WriteString("css:\n")
	b.WriteString(r.CSS)
	return []byte(b.String())
}

// RunWithGolden runs the scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against the named golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(result))
}
