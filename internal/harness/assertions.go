package harness

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/roach88/doclink/internal/client"
	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/store"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Assertion Assertion
	Message   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s assertion failed: %s", e.Assertion.Type, e.Message)
}

func evaluate(a Assertion, trace []TraceEvent, c *client.Client) error {
	var msg string
	switch a.Type {
	case AssertActionOrder:
		msg = checkActionOrder(a.Actions, trace)
	case AssertActionCount:
		msg = checkActionCount(a.Action, a.Count, trace)
	case AssertDocument:
		msg = checkDocument(a, c)
	case AssertQueryState:
		msg = checkQueryState(a, c)
	default:
		msg = fmt.Sprintf("unknown assertion type %q", a.Type)
	}
	if msg == "" {
		return nil
	}
	return &AssertionError{Assertion: a, Message: msg}
}

// checkActionOrder verifies that actions appear as a subsequence of the
// trace. Other actions may be interleaved.
func checkActionOrder(actions []string, trace []TraceEvent) string {
	next := 0
	for _, ev := range trace {
		if next < len(actions) && string(ev.Type) == actions[next] {
			next++
		}
	}
	if next < len(actions) {
		return fmt.Sprintf("action %q (position %d) not found in order; trace: %v",
			actions[next], next, traceTypes(trace))
	}
	return ""
}

func checkActionCount(action string, want int, trace []TraceEvent) string {
	got := 0
	for _, ev := range trace {
		if string(ev.Type) == action {
			got++
		}
	}
	if got != want {
		return fmt.Sprintf("expected %d %s action(s), got %d", want, action, got)
	}
	return ""
}

// checkDocument compares the expected keys against the stored document's
// wire form. Keys not listed are ignored.
func checkDocument(a Assertion, c *client.Client) string {
	doc := c.GetDocumentFromState(a.Doctype, a.ID)
	if doc == nil {
		return fmt.Sprintf("document %s/%s not in store", a.Doctype, a.ID)
	}
	obj := doc.Object()

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		want, err := ir.FromAny(a.Expect[k])
		if err != nil {
			return fmt.Sprintf("expect %s: %v", k, err)
		}
		got, ok := obj[k]
		if !ok {
			return fmt.Sprintf("document %s/%s: key %q missing", a.Doctype, a.ID, k)
		}
		if !sameValue(got, want) {
			return fmt.Sprintf("document %s/%s: key %q mismatch (expected %s, got %s)",
				a.Doctype, a.ID, k, canonical(want), canonical(got))
		}
	}
	return ""
}

func checkQueryState(a Assertion, c *client.Client) string {
	res := c.GetQueryFromState(a.Query)
	if res.Name == "" {
		return fmt.Sprintf("query %q not in store", a.Query)
	}
	if a.Status != "" && res.Status != store.Status(a.Status) {
		return fmt.Sprintf("query %q: expected status %s, got %s", a.Query, a.Status, res.Status)
	}
	if a.Count > 0 && len(res.Documents) != a.Count {
		return fmt.Sprintf("query %q: expected %d document(s), got %d", a.Query, a.Count, len(res.Documents))
	}
	return ""
}

func sameValue(a, b ir.IRValue) bool {
	ab, errA := ir.MarshalCanonical(a)
	bb, errB := ir.MarshalCanonical(b)
	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}

func canonical(v ir.IRValue) string {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(b)
}

func traceTypes(trace []TraceEvent) []string {
	out := make([]string, 0, len(trace))
	for _, ev := range trace {
		out = append(out, string(ev.Type))
	}
	return out
}
