// Package workflow reads and writes workflow documents and turns them into
// executable graphs.
//
// A document lists nodes by registry type with their properties and
// optional persisted state, plus the connections between their ports:
//
//	version: "1"
//	name: summarize
//	nodes:
//	  - id: source
//	    type: text_file
//	    properties:
//	      path: notes.txt
//	  - id: prompt
//	    type: llm_prompt
//	    policy: never_dirty
//	connections:
//	  - from: source
//	    output: Text
//	    to: prompt
//	    input: User Prompt
//
// Documents are YAML or JSON; Load and Save pick the format from the file
// extension.
package workflow

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
)

// Version is the document version written by Export.
const Version = "1"

// ErrInvalidDefinition is wrapped by every validation failure.
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// Definition is a workflow document.
type Definition struct {
	Version     string          `json:"version,omitempty" yaml:"version,omitempty" validate:"omitempty,oneof=1"`
	Name        string          `json:"name,omitempty" yaml:"name,omitempty" validate:"max=200"`
	Nodes       []NodeDef       `json:"nodes" yaml:"nodes" validate:"dive"`
	Connections []ConnectionDef `json:"connections,omitempty" yaml:"connections,omitempty" validate:"dive"`
}

// NodeDef describes one node. Dirty, ProcessingDone and Cache carry
// persisted state; when any of them is set the node is restored with it
// after the graph is wired.
type NodeDef struct {
	ID             string         `json:"id" yaml:"id" validate:"required,node_id"`
	Type           string         `json:"type" yaml:"type" validate:"required"`
	Title          string         `json:"title,omitempty" yaml:"title,omitempty"`
	Policy         string         `json:"policy,omitempty" yaml:"policy,omitempty" validate:"omitempty,policy"`
	Properties     map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
	Dirty          *bool          `json:"dirty,omitempty" yaml:"dirty,omitempty"`
	ProcessingDone bool           `json:"processing_done,omitempty" yaml:"processing_done,omitempty"`
	Cache          map[string]any `json:"cache,omitempty" yaml:"cache,omitempty"`
}

func (d NodeDef) hasState() bool {
	return d.Dirty != nil || d.ProcessingDone || d.Cache != nil
}

// ConnectionDef links output port Output of node From to input port Input
// of node To.
type ConnectionDef struct {
	From   string `json:"from" yaml:"from" validate:"required"`
	Output string `json:"output" yaml:"output" validate:"required"`
	To     string `json:"to" yaml:"to" validate:"required"`
	Input  string `json:"input" yaml:"input" validate:"required"`
}

func (c ConnectionDef) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", c.From, c.Output, c.To, c.Input)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("node_id", func(fl validator.FieldLevel) bool {
		id := fl.Field().String()
		return id != "" && len(id) <= 100 && !strings.ContainsAny(id, " \t\n.")
	})
	_ = v.RegisterValidation("policy", func(fl validator.FieldLevel) bool {
		_, err := nodeflow.ParsePolicy(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks field constraints and structure without a registry:
// node IDs are unique, connections reference declared nodes, and no input
// is linked twice. All problems are reported together.
func (d *Definition) Validate() error {
	var errs []error
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: %s", fieldPath(fe), fieldMessage(fe)))
			}
		} else {
			errs = append(errs, err)
		}
	}

	ids := make(map[string]bool, len(d.Nodes))
	for i, n := range d.Nodes {
		if n.ID == "" {
			continue
		}
		if ids[n.ID] {
			errs = append(errs, fmt.Errorf("nodes[%d].id: duplicate node ID %q", i, n.ID))
		}
		ids[n.ID] = true
	}

	inputs := make(map[string]int)
	for i, c := range d.Connections {
		if c.From != "" && !ids[c.From] {
			errs = append(errs, fmt.Errorf("connections[%d].from: unknown node %q", i, c.From))
		}
		if c.To != "" && !ids[c.To] {
			errs = append(errs, fmt.Errorf("connections[%d].to: unknown node %q", i, c.To))
		}
		key := c.To + "\x00" + c.Input
		if prev, ok := inputs[key]; ok {
			errs = append(errs, fmt.Errorf("connections[%d]: input %s.%s already linked by connections[%d]", i, c.To, c.Input, prev))
		}
		inputs[key] = i
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, errors.Join(errs...))
	}
	return nil
}

// fieldPath strips the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "max":
		return fmt.Sprintf("maximum length is %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "node_id":
		return "must be a non-empty identifier without whitespace or dots"
	case "policy":
		return fmt.Sprintf("unknown policy %q", fe.Value())
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}
