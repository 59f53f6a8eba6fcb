package schema

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// document is the file layout shared by the YAML and CUE forms:
//
//	doctypes: {
//		todos: {
//			doctype: "io.cozy.todos"
//			doctypeVersion: 2
//			relationships: {
//				authors: {type: "has-many", doctype: "io.cozy.persons"}
//			}
//		}
//	}
type document struct {
	Doctypes map[string]doctypeEntry `yaml:"doctypes" json:"doctypes"`
}

type doctypeEntry struct {
	Doctype        string                       `yaml:"doctype" json:"doctype"`
	DoctypeVersion int                          `yaml:"doctypeVersion" json:"doctypeVersion"`
	Relationships  map[string]relationshipEntry `yaml:"relationships" json:"relationships"`
}

type relationshipEntry struct {
	Type    string `yaml:"type" json:"type"`
	Doctype string `yaml:"doctype" json:"doctype"`
}

// LoadFile reads a schema from a .yaml, .yml or .cue file.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return LoadYAML(data)
	case ".cue":
		return LoadCUE(data, path)
	default:
		return nil, fmt.Errorf("read schema: unsupported file extension %q", filepath.Ext(path))
	}
}

// LoadYAML parses the YAML form.
func LoadYAML(data []byte) (*Schema, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return doc.build()
}

// LoadCUE evaluates the CUE form. Constraints written in CUE (for instance
// a closed definition for relationship types) are checked before the
// schema is built, and errors carry source positions.
func LoadCUE(data []byte, filename string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	doctypesVal := v.LookupPath(cue.ParsePath("doctypes"))
	if !doctypesVal.Exists() {
		return nil, &Error{Field: "doctypes", Message: "required field missing", Pos: v.Pos()}
	}

	var doc document
	if err := doctypesVal.Decode(&doc.Doctypes); err != nil {
		return nil, formatCUEError(err)
	}

	s, err := doc.build()
	if err != nil {
		var serr *Error
		if stderrors.As(err, &serr) {
			serr.Pos = positionOf(v, serr.Field)
		}
		return nil, err
	}
	return s, nil
}

func (doc document) build() (*Schema, error) {
	names := make([]string, 0, len(doc.Doctypes))
	for name := range doc.Doctypes {
		names = append(names, name)
	}
	sort.Strings(names)

	decls := make([]Doctype, 0, len(names))
	for _, name := range names {
		entry := doc.Doctypes[name]
		d := Doctype{
			Name:           name,
			Doctype:        entry.Doctype,
			DoctypeVersion: entry.DoctypeVersion,
		}
		for relName, rel := range entry.Relationships {
			d.Relationships = append(d.Relationships, Relationship{
				Name:    relName,
				Doctype: rel.Doctype,
				Kind:    Kind(rel.Type),
			})
		}
		decls = append(decls, d)
	}
	return New(decls...)
}

// positionOf finds the source position of a dotted field path, walking
// back to the closest parent that exists.
func positionOf(root cue.Value, field string) token.Pos {
	parts := strings.Split(field, ".")
	for n := len(parts); n > 0; n-- {
		sels := make([]cue.Selector, n)
		for i, p := range parts[:n] {
			sels[i] = cue.Str(p)
		}
		if fv := root.LookupPath(cue.MakePath(sels...)); fv.Exists() {
			return fv.Pos()
		}
	}
	return root.Pos()
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &Error{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
