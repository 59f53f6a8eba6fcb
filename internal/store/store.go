package store

import (
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/query"
)

// ErrClosed is returned by reads on a closed store.
var ErrClosed = errors.New("store is closed")

// Store holds normalized state. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	documents map[string]map[string]ir.Document
	queries   map[string]*QueryState
	mutations map[string]*MutationState
	closed    bool

	clock  *Clock
	now    func() time.Time
	logger *slog.Logger

	subMu  sync.Mutex
	subs   map[int]func(Action)
	nextID int
}

// Option configures a Store.
type Option func(*Store)

// WithNow sets the wall clock used for lastUpdate stamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock sets the revision clock, to resume numbering.
func WithClock(c *Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		documents: make(map[string]map[string]ir.Document),
		queries:   make(map[string]*QueryState),
		mutations: make(map[string]*MutationState),
		clock:     NewClock(),
		now:       time.Now,
		logger:    slog.Default(),
		subs:      make(map[int]func(Action)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch applies an action and notifies subscribers once the state is
// consistent again. Actions on a closed store are dropped.
func (s *Store) Dispatch(a Action) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("dropping action on closed store", "action", a.Type())
		return
	}
	s.reduce(a)
	rev := s.clock.Next()
	s.mu.Unlock()

	s.logger.Debug("dispatched", "action", a.Type(), "revision", rev)
	s.notify(a)
}

// Revision returns the number of actions applied so far.
func (s *Store) Revision() int64 {
	return s.clock.Current()
}

// Subscribe registers fn to be called after every dispatch. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(Action)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(a Action) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Action), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(a)
	}
}

// Close makes every later read fail and every later dispatch a no-op.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Document returns a copy of a document, or nil when it is not in the table.
func (s *Store) Document(doctype, id string) (*ir.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	doc, ok := s.documents[doctype][id]
	if !ok {
		return nil, nil
	}
	out := doc.Clone()
	return &out, nil
}

// Documents returns copies of the requested documents, in order. Missing
// documents yield nil entries.
func (s *Store) Documents(doctype string, ids []string) ([]*ir.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]*ir.Document, len(ids))
	for i, id := range ids {
		if doc, ok := s.documents[doctype][id]; ok {
			c := doc.Clone()
			out[i] = &c
		}
	}
	return out, nil
}

// All returns every document of a doctype ordered by id.
func (s *Store) All(doctype string) ([]ir.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	table := s.documents[doctype]
	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]ir.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, table[id].Clone())
	}
	return out, nil
}

// Doctypes returns the doctypes present in the document table, sorted.
func (s *Store) Doctypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.documents))
	for doctype := range s.documents {
		out = append(out, doctype)
	}
	slices.Sort(out)
	return out
}

// Query returns a copy of a query state, or nil when unknown.
func (s *Store) Query(name string) (*QueryState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	q, ok := s.queries[name]
	if !ok {
		return nil, nil
	}
	return q.clone(), nil
}

// Mutation returns a copy of a mutation state, or nil when unknown.
func (s *Store) Mutation(name string) (*MutationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	m, ok := s.mutations[name]
	if !ok {
		return nil, nil
	}
	return m.clone(), nil
}

// reduce applies an action. Callers hold s.mu.
func (s *Store) reduce(a Action) {
	now := s.now()

	switch act := a.(type) {
	case InitQuery:
		q := s.queryState(act.Name)
		q.Definition = act.Definition
		q.Doctype = act.Definition.Doctype
		q.Status = StatusLoading
		q.LastError = nil

	case ReceiveQueryResult:
		q := s.queryState(act.Name)
		ids := s.mergeResponse(act.Response, q.Doctype)
		if q.Definition.IsContinuation() {
			q.IDs = appendUnique(q.IDs, ids)
		} else {
			q.IDs = ids
		}
		q.Status = StatusLoaded
		q.LastUpdate = now
		q.LastError = nil
		q.FetchCount++
		if act.Response != nil {
			q.HasMore = act.Response.Next
			q.Bookmark = act.Response.Bookmark
		}

	case ReceiveQueryError:
		q := s.queryState(act.Name)
		q.Status = StatusFailed
		q.LastError = actionError(act.Err, act.Message)
		q.LastUpdate = now

	case InitMutation:
		m := s.mutationState(act.Name)
		m.Mutation = act.Mutation
		m.Status = StatusLoading
		m.LastError = nil

	case ReceiveMutationResult:
		m := s.mutationState(act.Name)
		m.Mutation = act.Mutation
		m.Status = StatusLoaded
		m.Response = act.Response
		m.Context = act.Context
		m.LastUpdate = now
		m.LastError = nil
		if act.Mutation.Type == query.DeleteDocument {
			s.removeDocument(act.Mutation.Document.Ref())
		} else {
			s.mergeResponse(act.Response, act.Mutation.Doctype())
		}

	case ReceiveMutationError:
		m := s.mutationState(act.Name)
		m.Mutation = act.Mutation
		m.Status = StatusFailed
		m.LastError = actionError(act.Err, act.Message)
		m.LastUpdate = now

	case ReceiveData:
		for _, doc := range act.Documents {
			s.mergeDocument(doc)
		}

	case ResetState:
		clear(s.documents)
		clear(s.queries)
		clear(s.mutations)
	}
}

func (s *Store) queryState(name string) *QueryState {
	q, ok := s.queries[name]
	if !ok {
		q = &QueryState{ID: name, IDs: []string{}}
		s.queries[name] = q
	}
	return q
}

func (s *Store) mutationState(name string) *MutationState {
	m, ok := s.mutations[name]
	if !ok {
		m = &MutationState{ID: name}
		s.mutations[name] = m
	}
	return m
}

// mergeResponse merges the data and included documents of resp and returns
// the ids of the data documents in order.
func (s *Store) mergeResponse(resp *query.Response, doctype string) []string {
	ids := []string{}
	if resp == nil {
		return ids
	}
	for _, doc := range resp.Data {
		if doc.Type == "" {
			doc.Type = doctype
		}
		if s.mergeDocument(doc) {
			ids = append(ids, doc.ID)
		}
	}
	for _, doc := range resp.Included {
		s.mergeDocument(doc)
	}
	return ids
}

// mergeDocument merges doc into the table, last write wins per attribute.
// Documents without a type or an id cannot be normalized and are skipped.
func (s *Store) mergeDocument(doc ir.Document) bool {
	if doc.Type == "" || doc.ID == "" {
		s.logger.Warn("skipping document without type or id", "type", doc.Type, "id", doc.ID)
		return false
	}

	table, ok := s.documents[doc.Type]
	if !ok {
		table = make(map[string]ir.Document)
		s.documents[doc.Type] = table
	}
	if existing, ok := table[doc.ID]; ok {
		table[doc.ID] = existing.Merge(doc)
	} else {
		table[doc.ID] = doc.Clone()
	}
	return true
}

func (s *Store) removeDocument(ref ir.Ref) {
	delete(s.documents[ref.Type], ref.ID)
	for _, q := range s.queries {
		if q.Doctype != ref.Type {
			continue
		}
		q.IDs = slices.DeleteFunc(q.IDs, func(id string) bool { return id == ref.ID })
	}
}

func appendUnique(ids, more []string) []string {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range more {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func actionError(err error, message string) error {
	if err != nil {
		return err
	}
	return errors.New(message)
}
