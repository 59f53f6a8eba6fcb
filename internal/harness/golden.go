package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/doclink/internal/ir"
)

// FormatTrace renders a trace as canonical JSON, one event per line.
// Empty fields are left out.
func FormatTrace(trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	for _, ev := range trace {
		obj := map[string]any{
			"seq":  int64(ev.Seq),
			"type": string(ev.Type),
		}
		if ev.Name != "" {
			obj["name"] = ev.Name
		}
		if ev.Doctype != "" {
			obj["doctype"] = ev.Doctype
		}
		if ev.Mutation != "" {
			obj["mutation"] = string(ev.Mutation)
		}
		if len(ev.IDs) > 0 {
			ids := make([]any, len(ev.IDs))
			for i, id := range ev.IDs {
				ids[i] = id
			}
			obj["ids"] = ids
		}
		if ev.Error != "" {
			obj["error"] = ev.Error
		}

		line, err := ir.MarshalCanonical(obj)
		if err != nil {
			return nil, fmt.Errorf("trace event %d: %w", ev.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden runs a scenario, requires it to pass, and compares its
// trace against testdata/golden/<name>.golden.
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	if !result.Pass {
		t.Fatalf("scenario %s failed:\n%v", scenario.Name, result.Errors)
	}

	AssertGolden(t, scenario.Name, result.Trace)
	return result
}

// AssertGolden compares a trace against its golden file. Run the tests
// with -update to rewrite the file.
func AssertGolden(t *testing.T, name string, trace []TraceEvent) {
	t.Helper()

	data, err := FormatTrace(trace)
	if err != nil {
		t.Fatalf("format trace: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
