// Package harness runs client scenarios against a scripted backend.
//
// A scenario seeds the store, scripts the backend answers, drives the
// client through queries and writes, and then checks the recorded store
// actions and the final state. The trace of store actions can be compared
// against golden files with RunWithGolden.
//
// Runs are deterministic: the wall clock is frozen at testutil.MockedDate
// and anonymous mutations are named "mutation-1", "mutation-2", ...
package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/doclink/internal/client"
	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/metadata"
	"github.com/roach88/doclink/internal/query"
	"github.com/roach88/doclink/internal/schema"
	"github.com/roach88/doclink/internal/store"
	"github.com/roach88/doclink/internal/testutil"
)

// Result is the outcome of a scenario run.
type Result struct {
	Pass   bool
	Errors []string
	Trace  []TraceEvent

	// Client is the client after the flow, for further inspection.
	Client *client.Client
}

// TraceEvent is the digest of one dispatched store action.
type TraceEvent struct {
	Seq      int
	Type     store.ActionType
	Name     string
	Doctype  string
	Mutation query.MutationType
	IDs      []string
	Error    string
}

// recorder collects trace events from store notifications.
type recorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (r *recorder) record(a store.Action) {
	ev := TraceEvent{Type: a.Type()}
	switch act := a.(type) {
	case store.InitQuery:
		ev.Name = act.Name
		ev.Doctype = act.Definition.Doctype
	case store.ReceiveQueryResult:
		ev.Name = act.Name
		if act.Response != nil {
			ev.IDs = documentIDs(act.Response.Data)
		}
	case store.ReceiveQueryError:
		ev.Name = act.Name
		ev.Error = act.Message
	case store.InitMutation:
		ev.Name = act.Name
		ev.Doctype = act.Mutation.Doctype()
		ev.Mutation = act.Mutation.Type
		if act.Mutation.Document.ID != "" {
			ev.IDs = []string{act.Mutation.Document.ID}
		}
	case store.ReceiveMutationResult:
		ev.Name = act.Name
		if act.Response != nil {
			ev.IDs = documentIDs(act.Response.Data)
		}
	case store.ReceiveMutationError:
		ev.Name = act.Name
		ev.Error = act.Message
	case store.ReceiveData:
		ev.IDs = documentIDs(act.Documents)
	}

	r.mu.Lock()
	ev.Seq = len(r.events) + 1
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) trace() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Run executes a scenario and returns the result. Scenario-level failures
// (bad schema, malformed documents) are returned as errors; step and
// assertion failures are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	var sch *schema.Schema
	if scenario.Schema != "" {
		var err error
		sch, err = schema.LoadFile(scenario.Schema)
		if err != nil {
			return nil, fmt.Errorf("load schema: %w", err)
		}
	}

	backend := testutil.NewBackend(scriptedAnswers(scenario.Responses))
	c, err := client.New(
		client.WithLinks(backend),
		client.WithSchema(sch),
		client.WithIdentity(metadata.Identity{
			Slug:          scenario.Identity.Slug,
			Version:       scenario.Identity.Version,
			SourceAccount: scenario.Identity.SourceAccount,
		}),
		client.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		client.WithClock(testutil.NewFixedClock(testutil.MockedDate).Now),
		client.WithNameGenerator(testutil.NewSequenceNames("mutation")),
	)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	rec := &recorder{}
	c.Store().Subscribe(rec.record)

	if len(scenario.Setup) > 0 {
		docs, err := toDocuments(scenario.Setup)
		if err != nil {
			return nil, fmt.Errorf("setup: %w", err)
		}
		c.SetData(docs...)
	}

	result := &Result{Pass: true, Client: c}
	ctx := context.Background()

	for i, step := range scenario.Flow {
		count, err := runStep(ctx, c, step)
		if stepErr := checkExpect(step.Expect, count, err); stepErr != nil {
			result.Pass = false
			result.Errors = append(result.Errors, fmt.Sprintf("flow[%d]: %v", i, stepErr))
		}
	}

	result.Trace = rec.trace()
	for _, a := range scenario.Assertions {
		if err := evaluate(a, result.Trace, c); err != nil {
			result.Pass = false
			result.Errors = append(result.Errors, err.Error())
		}
	}

	return result, nil
}

// runStep performs one client call and returns how many documents it
// returned.
func runStep(ctx context.Context, c *client.Client, step FlowStep) (int, error) {
	switch {
	case step.Query != nil:
		def, err := buildDefinition(step.Query)
		if err != nil {
			return 0, err
		}
		var opts []client.CallOption
		if step.Query.As != "" {
			opts = append(opts, client.WithName(step.Query.As))
		}
		if step.Query.All {
			docs, err := c.QueryAll(ctx, def, opts...)
			return len(docs), err
		}
		resp, err := c.Query(ctx, def, opts...)
		if err != nil {
			return 0, err
		}
		return len(resp.Data), nil

	case step.Save != nil:
		doc, err := toDocument(step.Save.Document)
		if err != nil {
			return 0, err
		}
		opts := []client.CallOption{client.WithReferences(step.Save.References)}
		if step.Save.As != "" {
			opts = append(opts, client.WithName(step.Save.As))
		}
		resp, err := c.Save(ctx, doc, opts...)
		if err != nil {
			return 0, err
		}
		return len(resp.Data), nil

	default:
		doc, err := toDocument(step.Destroy.Document)
		if err != nil {
			return 0, err
		}
		var opts []client.CallOption
		if step.Destroy.As != "" {
			opts = append(opts, client.WithName(step.Destroy.As))
		}
		resp, err := c.Destroy(ctx, doc, opts...)
		if err != nil {
			return 0, err
		}
		return len(resp.Data), nil
	}
}

func checkExpect(expect *ExpectClause, count int, err error) error {
	if expect == nil {
		expect = &ExpectClause{}
	}
	switch {
	case err != nil && expect.Error == "":
		return fmt.Errorf("unexpected error: %w", err)
	case err == nil && expect.Error != "":
		return fmt.Errorf("expected error containing %q, got success", expect.Error)
	case err != nil && !strings.Contains(err.Error(), expect.Error):
		return fmt.Errorf("expected error containing %q, got %q", expect.Error, err.Error())
	}
	if err == nil && expect.Count != nil && *expect.Count != count {
		return fmt.Errorf("expected %d document(s), got %d", *expect.Count, count)
	}
	return nil
}

func buildDefinition(q *QueryStep) (query.Definition, error) {
	def := query.Q(q.Doctype)
	switch {
	case q.ID != "":
		def = def.GetByID(q.ID)
	case len(q.IDs) > 0:
		def = def.GetByIDs(q.IDs...)
	}

	fields := make([]string, 0, len(q.Where))
	for f := range q.Where {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	for _, f := range fields {
		v, err := ir.FromAny(q.Where[f])
		if err != nil {
			return query.Definition{}, fmt.Errorf("where %s: %w", f, err)
		}
		def = def.Where(query.Eq(f, v))
	}

	if len(q.Include) > 0 {
		def = def.Include(q.Include...)
	}
	if q.Limit > 0 {
		def = def.Limit(q.Limit)
	}
	return def, nil
}

// scriptedAnswers answers the n-th backend call with responses[n].
func scriptedAnswers(responses []ResponseStep) testutil.AnswerFunc {
	echo := testutil.EchoWrites("doc")
	return func(op query.Operation, call int) (*query.Response, error) {
		if call >= len(responses) {
			return nil, fmt.Errorf("no scripted response for call %d", call)
		}
		r := responses[call]
		switch {
		case r.Echo:
			return echo(op, call)
		case r.Error != "":
			return nil, fmt.Errorf("%s", r.Error)
		}
		docs, err := toDocuments(r.Data)
		if err != nil {
			return nil, fmt.Errorf("response %d: %w", call, err)
		}
		if def, ok := op.(query.Definition); ok {
			for i := range docs {
				if docs[i].Type == "" {
					docs[i].Type = def.Doctype
				}
			}
		}
		return &query.Response{Data: docs, Next: r.Next}, nil
	}
}

// toDocument decodes a YAML mapping in the document wire form.
func toDocument(m map[string]any) (ir.Document, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return ir.Document{}, fmt.Errorf("encode document: %w", err)
	}
	var doc ir.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return ir.Document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func toDocuments(ms []map[string]any) ([]ir.Document, error) {
	docs := make([]ir.Document, 0, len(ms))
	for i, m := range ms {
		doc, err := toDocument(m)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func documentIDs(docs []ir.Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}
