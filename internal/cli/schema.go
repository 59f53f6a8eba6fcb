package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/doclink/internal/schema"
)

// DoctypeSummary is the validate output for one doctype.
type DoctypeSummary struct {
	Name          string                `json:"name"`
	Doctype       string                `json:"doctype"`
	Version       int                   `json:"doctypeVersion,omitempty"`
	Relationships []RelationshipSummary `json:"relationships,omitempty"`
}

// RelationshipSummary is the validate output for one relationship.
type RelationshipSummary struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Doctype string `json:"doctype"`
}

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect schema files",
	}
	cmd.AddCommand(newSchemaValidateCommand(rootOpts))
	return cmd
}

func newSchemaValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.cue|file.yaml>",
		Short: "Validate a schema file",
		Long: `Load a YAML or CUE schema file and check it: unique doctypes and
aliases, known relationship types, relationship targets set.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaValidate(rootOpts, args[0], cmd)
		},
	}
}

func runSchemaValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	formatter.VerboseLog("Loading schema %s", path)

	sch, err := schema.LoadFile(path)
	if err != nil {
		return reportError(formatter, ErrCodeSchema, WrapExitError(ExitFailure, "invalid schema", err))
	}

	summary := summarize(sch)
	if formatter.Format == "json" {
		return formatter.Success(summary)
	}
	fmt.Fprintln(formatter.Writer, schemaTable(summary))
	fmt.Fprintf(formatter.Writer, "✓ %d doctype(s) valid\n", len(summary))
	return nil
}

func summarize(sch *schema.Schema) []DoctypeSummary {
	var out []DoctypeSummary
	for _, dt := range sch.Doctypes() {
		s := DoctypeSummary{Name: dt.Name, Doctype: dt.Doctype, Version: dt.DoctypeVersion}
		for _, r := range dt.Relationships {
			s.Relationships = append(s.Relationships, RelationshipSummary{
				Name:    r.Name,
				Type:    string(r.Kind),
				Doctype: r.Doctype,
			})
		}
		out = append(out, s)
	}
	return out
}

func schemaTable(summary []DoctypeSummary) string {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"name", "doctype", "relationship", "type", "target"})
	for _, s := range summary {
		if len(s.Relationships) == 0 {
			tw.AppendRow(table.Row{s.Name, s.Doctype, "", "", ""})
			continue
		}
		for _, r := range s.Relationships {
			tw.AppendRow(table.Row{s.Name, s.Doctype, r.Name, r.Type, r.Doctype})
		}
	}
	return tw.Render()
}
