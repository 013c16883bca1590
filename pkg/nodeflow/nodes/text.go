package nodes

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
)

// StaticText outputs its "text" property on "Text".
func StaticText() nodeflow.NodeSpec {
	return nodeflow.NodeSpec{
		Title:      "Static Text",
		Outputs:    []nodeflow.PortSpec{{Name: "Text", Kind: nodeflow.KindString}},
		Properties: map[string]any{"text": ""},
		Body: nodeflow.BodyFunc(func(ec *nodeflow.ExecContext) (nodeflow.Outputs, error) {
			text := ec.Props().String("text", "")
			ec.SetCompleteStatus(fmt.Sprintf("Outputting %d characters", utf8.RuneCountInString(text)))
			return nodeflow.Outputs{"Text": text}, nil
		}),
	}
}

// TextFile loads the file at "path" onto "Text" in load mode, or writes
// the "Text" input to it in save mode and passes the text through. It is
// always dirty so edits on disk are picked up on every run.
func TextFile() nodeflow.NodeSpec {
	return nodeflow.NodeSpec{
		Title:   "Text File",
		Inputs:  []nodeflow.PortSpec{{Name: "Text", Kind: nodeflow.KindString}},
		Outputs: []nodeflow.PortSpec{{Name: "Text", Kind: nodeflow.KindString}},
		Properties: map[string]any{
			"path": "",
			"mode": "load",
		},
		Policy: nodeflow.AlwaysDirty,
		Body:   nodeflow.BodyFunc(textFile),
	}
}

func textFile(ec *nodeflow.ExecContext) (nodeflow.Outputs, error) {
	path := ec.Props().String("path", "")
	mode := strings.ToLower(ec.Props().String("mode", "load"))

	if strings.HasPrefix(mode, "s") {
		content := ec.InputString("Text")
		if !ec.Connected("Text") {
			ec.SetCompleteStatus("No input data to save")
			return nodeflow.Outputs{"Text": ""}, nil
		}
		if path == "" {
			ec.SetCompleteStatus("No file path specified")
			return nodeflow.Outputs{"Text": content}, nil
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("save %s: %w", path, err)
		}
		ec.SetCompleteStatus(fmt.Sprintf("Saved %d characters to file", utf8.RuneCountInString(content)))
		return nodeflow.Outputs{"Text": content}, nil
	}

	if path == "" {
		ec.SetCompleteStatus("No file path specified")
		return nodeflow.Outputs{"Text": ""}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		ec.SetCompleteStatus("File does not exist")
		return nodeflow.Outputs{"Text": ""}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	content := string(data)
	ec.SetCompleteStatus(fmt.Sprintf("Loaded %d characters from file", utf8.RuneCountInString(content)))
	return nodeflow.Outputs{"Text": content}, nil
}

const joinInputs = 8

// Join concatenates the connected inputs "Input 1".."Input 8" with the
// "delimiter" property onto "Result". Unconnected inputs are ignored.
func Join() nodeflow.NodeSpec {
	inputs := make([]nodeflow.PortSpec, joinInputs)
	for i := range inputs {
		inputs[i] = nodeflow.PortSpec{Name: fmt.Sprintf("Input %d", i+1), Kind: nodeflow.KindString}
	}
	return nodeflow.NodeSpec{
		Title:   "Join",
		Inputs:  inputs,
		Outputs: []nodeflow.PortSpec{{Name: "Result", Kind: nodeflow.KindString}},
		Properties: map[string]any{
			"delimiter":       "\n",
			"skip_empty":      true,
			"trim_whitespace": false,
		},
		Body: nodeflow.BodyFunc(join),
	}
}

func join(ec *nodeflow.ExecContext) (nodeflow.Outputs, error) {
	props := ec.Props()
	delimiter := props.String("delimiter", "\n")
	skipEmpty := props.Bool("skip_empty", true)
	trim := props.Bool("trim_whitespace", false)

	var values []string
	connected := 0
	for i := 1; i <= joinInputs; i++ {
		name := fmt.Sprintf("Input %d", i)
		if !ec.Connected(name) {
			continue
		}
		connected++
		v := ec.InputString(name)
		if trim {
			v = strings.TrimSpace(v)
		}
		if skipEmpty && v == "" {
			continue
		}
		values = append(values, v)
	}

	if connected == 0 {
		ec.SetCompleteStatus("All inputs empty")
	} else {
		ec.SetCompleteStatus(fmt.Sprintf("Complete: %d inputs joined", len(values)))
	}
	return nodeflow.Outputs{"Result": strings.Join(values, delimiter)}, nil
}

const splitOutputs = 8

func emptySplit() nodeflow.Outputs {
	out := make(nodeflow.Outputs, splitOutputs+1)
	for i := 1; i <= splitOutputs; i++ {
		out[fmt.Sprintf("Output %d", i)] = ""
	}
	out["Overflow"] = ""
	return out
}

// Split splits "Text" (or the "text" property when unconnected) on
// "delimiter" into "Output 1".."Output 8". Parts beyond the eighth are
// joined onto "Overflow".
func Split() nodeflow.NodeSpec {
	outputs := make([]nodeflow.PortSpec, 0, splitOutputs+1)
	for i := 1; i <= splitOutputs; i++ {
		outputs = append(outputs, nodeflow.PortSpec{Name: fmt.Sprintf("Output %d", i), Kind: nodeflow.KindString})
	}
	outputs = append(outputs, nodeflow.PortSpec{Name: "Overflow", Kind: nodeflow.KindString})
	return nodeflow.NodeSpec{
		Title:   "Split",
		Inputs:  []nodeflow.PortSpec{{Name: "Text", Kind: nodeflow.KindString}},
		Outputs: outputs,
		Properties: map[string]any{
			"text":            "",
			"delimiter":       "\n",
			"trim_whitespace": false,
			"max_splits":      -1,
			"use_regex":       false,
		},
		Body: nodeflow.BodyFunc(split),
	}
}

func split(ec *nodeflow.ExecContext) (nodeflow.Outputs, error) {
	text := textInput(ec, "Text", "text")
	if text == "" {
		ec.SetCompleteStatus("No input text")
		return emptySplit(), nil
	}

	props := ec.Props()
	delimiter := props.String("delimiter", "\n")
	useRegex := props.Bool("use_regex", false)
	maxSplits := props.Int("max_splits", -1)
	n := -1
	if maxSplits >= 0 {
		n = maxSplits + 1
	}

	var parts []string
	switch {
	case useRegex:
		re, err := compilePattern(delimiter, regexFlags{})
		if err != nil {
			return nil, err
		}
		parts = re.Split(text, n)
	case delimiter == "":
		return nil, errors.New("empty delimiter")
	default:
		parts = strings.SplitN(text, delimiter, n)
	}
	if props.Bool("trim_whitespace", false) {
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
	}

	out := emptySplit()
	for i := 0; i < len(parts) && i < splitOutputs; i++ {
		out[fmt.Sprintf("Output %d", i+1)] = parts[i]
	}
	if len(parts) > splitOutputs {
		sep := delimiter
		if useRegex {
			sep = " "
		}
		out["Overflow"] = strings.Join(parts[splitOutputs:], sep)
		ec.SetCompleteStatus(fmt.Sprintf("Split into %d part(s) (8 outputs + overflow)", len(parts)))
	} else {
		ec.SetCompleteStatus(fmt.Sprintf("Split into %d part(s)", len(parts)))
	}
	return out, nil
}

// Regex applies "pattern" to "Text" and writes the result to "Result".
// The "operation" property selects replace, match (first match), split
// (parts joined by newlines) or findall (matches joined by newlines).
func Regex() nodeflow.NodeSpec {
	return nodeflow.NodeSpec{
		Title:   "Regex",
		Inputs:  []nodeflow.PortSpec{{Name: "Text", Kind: nodeflow.KindString}},
		Outputs: []nodeflow.PortSpec{{Name: "Result", Kind: nodeflow.KindString}},
		Properties: map[string]any{
			"pattern":        `<think>.*?</think>`,
			"replacement":    "",
			"operation":      "replace",
			"use_dotall":     true,
			"use_multiline":  false,
			"use_ignorecase": false,
		},
		Body: nodeflow.BodyFunc(regex),
	}
}

func regex(ec *nodeflow.ExecContext) (nodeflow.Outputs, error) {
	text := ec.InputString("Text")
	if text == "" {
		ec.SetCompleteStatus("No input text")
		return nodeflow.Outputs{"Result": ""}, nil
	}

	props := ec.Props()
	re, err := compilePattern(props.String("pattern", ""), regexFlags{
		dotAll:     props.Bool("use_dotall", true),
		multiline:  props.Bool("use_multiline", false),
		ignoreCase: props.Bool("use_ignorecase", false),
	})
	if err != nil {
		return nil, err
	}

	var result string
	switch props.String("operation", "replace") {
	case "replace":
		result = re.ReplaceAllString(text, expandReplacement(props.String("replacement", "")))
	case "match":
		result = re.FindString(text)
	case "split":
		result = strings.Join(re.Split(text, -1), "\n")
	case "findall":
		result = strings.Join(findAll(re, text, " | "), "\n")
	default:
		result = text
	}
	return nodeflow.Outputs{"Result": result}, nil
}
