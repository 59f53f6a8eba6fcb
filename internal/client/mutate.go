package client

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/doclink/internal/association"
	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/metadata"
	"github.com/roach88/doclink/internal/query"
	"github.com/roach88/doclink/internal/store"
)

// SavePlan is what persisting one document takes: the base write, then
// creators deriving reference mutations from the base response.
type SavePlan struct {
	Base     query.Mutation
	Creators []query.MutationCreator
}

// Steps returns the plan as mutation steps: [base] or [base, creator...].
func (p SavePlan) Steps() []query.Step {
	steps := make([]query.Step, 0, 1+len(p.Creators))
	steps = append(steps, p.Base)
	for _, cr := range p.Creators {
		steps = append(steps, cr)
	}
	return steps
}

// GetDocumentSavePlan derives the writes persisting doc.
//
// A document with an id and a revision is updated; one without a revision
// is created, keeping its id when it has one. A revision without an id is
// rejected with ErrInvalidSavePlan. A document without a type still gets a
// plan; Mutate rejects it before anything is sent. The cozyMetadata block is prepared for
// the write. Each relationship of changeset with at least one ref adds a
// creator linking the saved document to those refs, in name order.
func (c *Client) GetDocumentSavePlan(doc ir.Document, changeset map[string][]ir.Ref) (SavePlan, error) {
	if doc.Rev != "" && doc.ID == "" {
		return SavePlan{}, configError(ErrCodeSavePlanInvalid, ErrInvalidSavePlan, "%s document has a revision but no id", doc.Type)
	}

	event := metadata.Creation
	if doc.Rev != "" {
		event = metadata.Update
	}
	doc = metadata.Ensure(doc, c.identity, metadata.Options{
		Event:          event,
		Now:            c.now().UTC(),
		DoctypeVersion: c.schema.DoctypeVersion(doc.Type),
	})

	plan := SavePlan{Base: query.Create(doc)}
	if event == metadata.Update {
		plan.Base = query.Update(doc)
	}

	names := make([]string, 0, len(changeset))
	for name, refs := range changeset {
		if len(refs) == 0 {
			continue
		}
		if _, ok := c.schema.Relationship(doc.Type, name); !ok {
			return SavePlan{}, configError(ErrCodeSavePlanInvalid, ErrUnknownRelationship, "relationship %q on %s", name, doc.Type)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		plan.Creators = append(plan.Creators, linkCreator(doc.Type, changeset[name]))
	}
	return plan, nil
}

// linkCreator links the document saved by the base mutation to refs.
func linkCreator(doctype string, refs []ir.Ref) query.MutationCreator {
	refs = append([]ir.Ref(nil), refs...)
	return func(resp *query.Response) []query.Mutation {
		saved, ok := resp.First()
		if !ok {
			return nil
		}
		if saved.Type == "" {
			saved.Type = doctype
		}
		return []query.Mutation{association.LinkMutation(saved, refs)}
	}
}

// Mutate runs a batch of steps as one named mutation. The first step must
// be a mutation and is sent first; every later step runs after it, in
// order: a mutation is sent as is, a creator is called with the first
// response and each mutation it returns is sent. The first response is
// recorded and returned. The first failure stops the batch, is recorded
// and is returned unchanged.
func (c *Client) Mutate(ctx context.Context, steps []query.Step, opts ...CallOption) (*query.Response, error) {
	o := newCallOptions(opts)

	if len(steps) == 0 {
		return nil, configError(ErrCodeSavePlanInvalid, ErrInvalidSavePlan, "mutation has no steps")
	}
	base, ok := steps[0].(query.Mutation)
	if !ok {
		return nil, configError(ErrCodeSavePlanInvalid, ErrInvalidSavePlan, "first step is %T, not a mutation", steps[0])
	}
	if err := query.ValidateMutation(base); err != nil {
		return nil, configError(ErrCodeQueryInvalid, err, "validate %s", base.Type)
	}

	name := o.name
	if name == "" {
		name = c.names.Generate()
	}

	c.store.Dispatch(store.NewInitMutation(name, base))

	resp, err := c.runSteps(ctx, base, steps[1:])
	if err != nil {
		c.logger.Debug("mutation failed", "mutation", name, "type", base.Type, "error", err)
		c.store.Dispatch(store.NewReceiveMutationError(name, err, base))
		return nil, err
	}

	c.store.Dispatch(store.NewReceiveMutationResult(name, resp,
		store.MutationContext{Documents: []ir.Document{base.Document}}, base))
	return resp, nil
}

func (c *Client) runSteps(ctx context.Context, base query.Mutation, rest []query.Step) (*query.Response, error) {
	first, err := c.Execute(ctx, base)
	if err != nil {
		return nil, err
	}

	for i, step := range rest {
		var batch []query.Mutation
		switch s := step.(type) {
		case query.Mutation:
			batch = []query.Mutation{s}
		case query.MutationCreator:
			batch = s(first)
		default:
			return nil, fmt.Errorf("step %d: unsupported step %T", i+1, step)
		}

		for _, m := range batch {
			if err := query.ValidateMutation(m); err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
			if _, err := c.Execute(ctx, m); err != nil {
				return nil, err
			}
		}
	}
	return first, nil
}

// Save creates or updates doc, then links it per WithReferences.
func (c *Client) Save(ctx context.Context, doc ir.Document, opts ...CallOption) (*query.Response, error) {
	plan, err := c.GetDocumentSavePlan(doc, newCallOptions(opts).references)
	if err != nil {
		return nil, err
	}
	return c.Mutate(ctx, plan.Steps(), opts...)
}

// SaveHydrated dehydrates h and saves it.
func (c *Client) SaveHydrated(ctx context.Context, h *association.HydratedDocument, opts ...CallOption) (*query.Response, error) {
	return c.Save(ctx, h.Dehydrate(), opts...)
}

// Create saves a new document of doctype with attrs, then links it to
// refs, keyed by relationship name.
func (c *Client) Create(ctx context.Context, doctype string, attrs ir.IRObject, refs map[string][]ir.Ref, opts ...CallOption) (*query.Response, error) {
	doc := ir.Document{Type: doctype, Attributes: attrs.Clone()}
	if doc.Attributes == nil {
		doc.Attributes = ir.IRObject{}
	}
	if id, ok := doc.Attributes["_id"].(ir.IRString); ok {
		doc.ID = string(id)
		delete(doc.Attributes, "_id")
	}
	return c.Save(ctx, doc, append(opts, WithReferences(refs))...)
}

// Destroy deletes doc. It is removed from the store and from every query
// listing it once the backend confirms.
func (c *Client) Destroy(ctx context.Context, doc ir.Document, opts ...CallOption) (*query.Response, error) {
	return c.Mutate(ctx, query.Steps(query.Delete(doc)), opts...)
}
