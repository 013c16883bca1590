// Package nodes implements the built-in node types: static and file
// text sources, text joining, splitting and regex processing, CSV
// tables, and an asynchronous LLM prompt.
//
// Each constructor returns a nodeflow.NodeSpec with a fresh Body. Use
// RegisterBuiltins to make them available to workflow documents.
package nodes

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/llm"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/registry"
)

// Node type names.
const (
	TypeStaticText = "static_text"
	TypeTextFile   = "text_file"
	TypeJoin       = "join"
	TypeSplit      = "split"
	TypeRegex      = "regex"
	TypePrompt     = "llm_prompt"
	TypeCSVTable   = "csv_table"
)

// Categories used in the registry.
const (
	CategoryInput = "Input"
	CategoryIO    = "I/O"
	CategoryText  = "Text Processing"
	CategoryLLM   = "LLM"
	CategoryData  = "Data Processing"
)

// Deps holds the services node bodies need.
type Deps struct {
	// LLM serves prompt nodes. Prompt nodes fault when it is nil.
	LLM llm.Client

	// DefaultModel is the model property of new prompt nodes.
	DefaultModel string
}

// RegisterBuiltins registers every built-in node type on reg.
func RegisterBuiltins(reg *registry.Registry, deps Deps) error {
	entries := []registry.Entry{
		{Type: TypeStaticText, Category: CategoryInput, Description: "Outputs fixed text", Factory: StaticText},
		{Type: TypeTextFile, Category: CategoryIO, Description: "Loads or saves a text file", Factory: TextFile},
		{Type: TypeJoin, Category: CategoryText, Description: "Joins up to eight inputs with a delimiter", Factory: Join},
		{Type: TypeSplit, Category: CategoryText, Description: "Splits text into up to eight outputs", Factory: Split},
		{Type: TypeRegex, Category: CategoryText, Description: "Applies a regular expression", Factory: Regex},
		{Type: TypeCSVTable, Category: CategoryData, Description: "Parses CSV, selects a column and summarises it", Factory: CSVTable},
		{Type: TypePrompt, Category: CategoryLLM, Description: "Streams a completion from a language model", Factory: func() nodeflow.NodeSpec {
			return Prompt(deps)
		}},
	}
	for _, e := range entries {
		if err := reg.Register(e); err != nil {
			return err
		}
	}
	return nil
}

// textInput returns the named input when it is connected and the named
// property otherwise.
func textInput(ec *nodeflow.ExecContext, input, prop string) string {
	if ec.Connected(input) {
		return ec.InputString(input)
	}
	return ec.Props().String(prop, "")
}

// regexFlags holds the flag properties shared by Regex and Prompt.
type regexFlags struct {
	dotAll     bool
	multiline  bool
	ignoreCase bool
}

func compilePattern(pattern string, f regexFlags) (*regexp.Regexp, error) {
	var prefix strings.Builder
	if f.dotAll {
		prefix.WriteByte('s')
	}
	if f.multiline {
		prefix.WriteByte('m')
	}
	if f.ignoreCase {
		prefix.WriteByte('i')
	}
	if prefix.Len() > 0 {
		pattern = "(?" + prefix.String() + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return re, nil
}

// findAll returns every match. With one capture group the group is
// returned; with several, groupJoin joins them, or the first group is
// used when groupJoin is empty.
func findAll(re *regexp.Regexp, text, groupJoin string) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		switch {
		case len(m) == 1:
			out = append(out, m[0])
		case len(m) == 2 || groupJoin == "":
			out = append(out, m[1])
		default:
			out = append(out, strings.Join(m[1:], groupJoin))
		}
	}
	return out
}

var backrefPattern = regexp.MustCompile(`\\(\d+)|\\g<(\w+)>`)

// expandReplacement accepts both $1 and \1 style group references.
func expandReplacement(repl string) string {
	return backrefPattern.ReplaceAllString(repl, "$${$1$2}")
}
