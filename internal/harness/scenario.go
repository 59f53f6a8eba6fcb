package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/doclink/internal/ir"
)

// Scenario drives a client against a scripted backend and asserts on the
// resulting store action trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is an optional path to a YAML or CUE schema file, relative to
	// the scenario file.
	Schema string `yaml:"schema,omitempty"`

	// Identity is the application identity stamped into metadata.
	Identity IdentitySpec `yaml:"identity,omitempty"`

	// Setup documents are loaded into the store before the flow.
	Setup []map[string]any `yaml:"setup,omitempty"`

	// Responses answer the backend calls in order.
	Responses []ResponseStep `yaml:"responses,omitempty"`

	// Flow lists the client calls.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: action_order, action_count, document, query_state
	Assertions []Assertion `yaml:"assertions"`
}

// IdentitySpec is the YAML form of metadata.Identity.
type IdentitySpec struct {
	Slug          string `yaml:"slug"`
	Version       string `yaml:"version"`
	SourceAccount string `yaml:"source_account"`
}

// ResponseStep is the scripted answer to one backend call.
type ResponseStep struct {
	Data []map[string]any `yaml:"data,omitempty"`
	Next bool             `yaml:"next,omitempty"`

	// Error fails the call with this message.
	Error string `yaml:"error,omitempty"`

	// Echo answers a write the way the stack does: new documents get an
	// id and a first revision, updates a bumped revision.
	Echo bool `yaml:"echo,omitempty"`
}

// FlowStep is one client call. Exactly one of Query, Save or Destroy is set.
type FlowStep struct {
	Query   *QueryStep    `yaml:"query,omitempty"`
	Save    *SaveStep     `yaml:"save,omitempty"`
	Destroy *SaveStep     `yaml:"destroy,omitempty"`
	Expect  *ExpectClause `yaml:"expect,omitempty"`
}

// QueryStep describes a query. Where values are equality filters.
type QueryStep struct {
	Doctype string         `yaml:"doctype"`
	ID      string         `yaml:"id,omitempty"`
	IDs     []string       `yaml:"ids,omitempty"`
	Where   map[string]any `yaml:"where,omitempty"`
	Include []string       `yaml:"include,omitempty"`
	Limit   int            `yaml:"limit,omitempty"`
	All     bool           `yaml:"all,omitempty"`
	As      string         `yaml:"as,omitempty"`
}

// SaveStep describes a document write.
type SaveStep struct {
	Document   map[string]any      `yaml:"document"`
	References map[string][]ir.Ref `yaml:"references,omitempty"`
	As         string              `yaml:"as,omitempty"`
}

// ExpectClause checks the outcome of a flow step.
type ExpectClause struct {
	// Count is the number of documents the call returns.
	Count *int `yaml:"count,omitempty"`

	// Error is a substring the returned error must contain. A step with
	// no Error must succeed.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "action_order": Actions appear in this order
	// - "action_count": Action appears exactly Count times
	// - "document": the stored Doctype/ID document has the Expect attributes
	// - "query_state": query Query has Status and Count ids
	Type string `yaml:"type"`

	Action  string         `yaml:"action,omitempty"`
	Actions []string       `yaml:"actions,omitempty"`
	Count   int            `yaml:"count,omitempty"`
	Doctype string         `yaml:"doctype,omitempty"`
	ID      string         `yaml:"id,omitempty"`
	Query   string         `yaml:"query,omitempty"`
	Status  string         `yaml:"status,omitempty"`
	Expect  map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertActionOrder = "action_order"
	AssertActionCount = "action_count"
	AssertDocument    = "document"
	AssertQueryState  = "query_state"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected and the schema path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Schema != "" {
		if _, err := os.Stat(s.Schema); err != nil {
			return fmt.Errorf("schema file not found: %s", s.Schema)
		}
	}

	for i, step := range s.Flow {
		set := 0
		for _, present := range []bool{step.Query != nil, step.Save != nil, step.Destroy != nil} {
			if present {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("flow[%d]: exactly one of query, save, destroy is required", i)
		}
		if step.Query != nil && step.Query.Doctype == "" {
			return fmt.Errorf("flow[%d].query: doctype is required", i)
		}
	}

	for i, resp := range s.Responses {
		if resp.Echo && (resp.Error != "" || len(resp.Data) > 0) {
			return fmt.Errorf("responses[%d]: echo excludes data and error", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertActionOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for action_order", index)
		}
	case AssertActionCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for action_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for action_count", index)
		}
	case AssertDocument:
		if a.Doctype == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: doctype and id are required for document", index)
		}
	case AssertQueryState:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: query is required for query_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
