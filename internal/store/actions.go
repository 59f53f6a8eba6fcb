package store

import (
	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/query"
)

// ActionType is the discriminant of an action record.
type ActionType string

const (
	ActionInitQuery             ActionType = "INIT_QUERY"
	ActionReceiveQueryResult    ActionType = "RECEIVE_QUERY_RESULT"
	ActionReceiveQueryError     ActionType = "RECEIVE_QUERY_ERROR"
	ActionInitMutation          ActionType = "INIT_MUTATION"
	ActionReceiveMutationResult ActionType = "RECEIVE_MUTATION_RESULT"
	ActionReceiveMutationError  ActionType = "RECEIVE_MUTATION_ERROR"
	ActionReceiveData           ActionType = "RECEIVE_DATA"
	ActionResetState            ActionType = "RESET_STATE"
)

// Action is a store event. Sealed: only the records below implement it.
type Action interface {
	Type() ActionType
	action()
}

// InitQuery marks a query as in flight. It must be dispatched before the
// request is sent so that readers observe the pending state.
type InitQuery struct {
	Name       string           `json:"queryId"`
	Definition query.Definition `json:"definition"`
}

// ReceiveQueryResult ends one round of a query successfully.
type ReceiveQueryResult struct {
	Name     string          `json:"queryId"`
	Response *query.Response `json:"response"`
}

// ReceiveQueryError ends one round of a query with an error.
type ReceiveQueryError struct {
	Name    string `json:"queryId"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// MutationContext carries the side-effect context of a mutation, such as
// the documents the write originated from.
type MutationContext struct {
	Documents []ir.Document `json:"documents,omitempty"`
}

// InitMutation marks a mutation as in flight.
type InitMutation struct {
	Name     string         `json:"mutationId"`
	Mutation query.Mutation `json:"definition"`
}

// ReceiveMutationResult ends a mutation successfully.
type ReceiveMutationResult struct {
	Name     string          `json:"mutationId"`
	Response *query.Response `json:"response"`
	Context  MutationContext `json:"context"`
	Mutation query.Mutation  `json:"definition"`
}

// ReceiveMutationError ends a mutation with an error.
type ReceiveMutationError struct {
	Name     string         `json:"mutationId"`
	Message  string         `json:"error"`
	Err      error          `json:"-"`
	Mutation query.Mutation `json:"definition"`
}

// ReceiveData merges already shaped documents, outside any query.
type ReceiveData struct {
	Documents []ir.Document `json:"documents"`
}

// ResetState empties every table.
type ResetState struct{}

func (InitQuery) Type() ActionType             { return ActionInitQuery }
func (ReceiveQueryResult) Type() ActionType    { return ActionReceiveQueryResult }
func (ReceiveQueryError) Type() ActionType     { return ActionReceiveQueryError }
func (InitMutation) Type() ActionType          { return ActionInitMutation }
func (ReceiveMutationResult) Type() ActionType { return ActionReceiveMutationResult }
func (ReceiveMutationError) Type() ActionType  { return ActionReceiveMutationError }
func (ReceiveData) Type() ActionType           { return ActionReceiveData }
func (ResetState) Type() ActionType            { return ActionResetState }

func (InitQuery) action()             {}
func (ReceiveQueryResult) action()    {}
func (ReceiveQueryError) action()     {}
func (InitMutation) action()          {}
func (ReceiveMutationResult) action() {}
func (ReceiveMutationError) action()  {}
func (ReceiveData) action()           {}
func (ResetState) action()            {}

// NewInitQuery builds an InitQuery action.
func NewInitQuery(name string, def query.Definition) InitQuery {
	return InitQuery{Name: name, Definition: def}
}

// NewReceiveQueryResult builds a ReceiveQueryResult action.
func NewReceiveQueryResult(name string, resp *query.Response) ReceiveQueryResult {
	return ReceiveQueryResult{Name: name, Response: resp}
}

// NewReceiveQueryError builds a ReceiveQueryError action.
func NewReceiveQueryError(name string, err error) ReceiveQueryError {
	return ReceiveQueryError{Name: name, Message: errorMessage(err), Err: err}
}

// NewInitMutation builds an InitMutation action.
func NewInitMutation(name string, m query.Mutation) InitMutation {
	return InitMutation{Name: name, Mutation: m}
}

// NewReceiveMutationResult builds a ReceiveMutationResult action.
func NewReceiveMutationResult(name string, resp *query.Response, ctx MutationContext, m query.Mutation) ReceiveMutationResult {
	return ReceiveMutationResult{Name: name, Response: resp, Context: ctx, Mutation: m}
}

// NewReceiveMutationError builds a ReceiveMutationError action.
func NewReceiveMutationError(name string, err error, m query.Mutation) ReceiveMutationError {
	return ReceiveMutationError{Name: name, Message: errorMessage(err), Err: err, Mutation: m}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
