/*
Package template expands ${NAME} references in workflow documents.

Values come from a Lookup, usually a chain of command-line variables and
the process environment:

	exp := template.NewExpander(template.Chain(
	    template.MapLookup(map[string]string{"MODEL": "llama3"}),
	    template.EnvLookup(),
	))
	s, err := exp.Expand("model: ${MODEL}, notes: ${NOTES_DIR:-./notes}")

A reference may carry a fallback after ":-", used when the name is unset.
Only the brace form is recognised, so regex replacement strings such as
"$2$1" or "${1}" pass through untouched.

# Missing Variables

By default an unset name without a fallback is left as written. Use
WithMissingAction to replace it with an empty string or to report an
UndefinedVariableError instead.

Expander is safe for concurrent use after construction.
*/
package template
