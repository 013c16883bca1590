package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/workflow"
)

const greetingYAML = `
nodes:
  - id: hello
    type: static_text
    properties:
      text: hello
  - id: world
    type: static_text
    properties:
      text: world
  - id: joined
    type: join
    properties:
      delimiter: " "
connections:
  - {from: hello, output: Text, to: joined, input: Input 1}
  - {from: world, output: Text, to: joined, input: Input 2}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected ExitError, got %v", err)
	return exitErr.Code
}

func TestTypesCommand(t *testing.T) {
	out, _, err := execute(t, "types", "--ports")
	require.NoError(t, err)
	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, "llm_prompt")
	assert.Contains(t, out, "Text Processing")
	assert.Contains(t, out, "Overflow (string)")
}

func TestTypesCommandJSON(t *testing.T) {
	out, _, err := execute(t, "types", "--format", "json")
	require.NoError(t, err)

	var infos []typeInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 7)
	byType := make(map[string]typeInfo)
	for _, info := range infos {
		byType[info.Type] = info
	}
	assert.True(t, byType["llm_prompt"].Async)
	assert.Len(t, byType["join"].Inputs, 8)
}

func TestValidateCommand(t *testing.T) {
	path := writeFile(t, "greeting.yaml", greetingYAML)
	out, _, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "valid (3 nodes, 2 connections)")
}

func TestValidateCommandErrors(t *testing.T) {
	bad := writeFile(t, "bad.yaml", `
nodes:
  - id: a
    type: static_text
connections:
  - {from: a, output: Nope, to: a, input: Text}
`)
	_, stderr, err := execute(t, "validate", bad)
	require.Error(t, err)
	assert.Equal(t, exitValidation, exitCode(t, err))
	assert.Contains(t, stderr, `has no output "Nope"`)

	_, _, err = execute(t, "validate", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, exitFileNotFound, exitCode(t, err))
}

func TestRunCommand(t *testing.T) {
	path := writeFile(t, "greeting.yaml", greetingYAML)
	out, _, err := execute(t, "run", path, "--format", "json")
	require.NoError(t, err)

	var res jsonResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, "hello world", res.Outputs["joined"]["Result"])
	assert.NotEmpty(t, res.SessionID)
}

func TestRunCommandTextOutput(t *testing.T) {
	path := writeFile(t, "greeting.yaml", greetingYAML)
	out, _, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "workflow executed successfully (3 nodes processed)"))
	assert.Contains(t, out, "== Join / Result ==\nhello world")
}

func TestRunCommandPersistsState(t *testing.T) {
	path := writeFile(t, "greeting.yaml", greetingYAML)
	db := filepath.Join(t.TempDir(), "state.db")

	out, _, err := execute(t, "run", path, "--state-db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "3 nodes processed")

	out, _, err = execute(t, "run", path, "--state-db", db)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "workflow up to date"), out)
	assert.Contains(t, out, "hello world")
}

func TestRunCommandSave(t *testing.T) {
	path := writeFile(t, "greeting.yaml", greetingYAML)
	saved := filepath.Join(t.TempDir(), "saved.json")

	_, _, err := execute(t, "run", path, "--save", saved)
	require.NoError(t, err)

	def, err := workflow.Load(saved)
	require.NoError(t, err)
	require.Len(t, def.Nodes, 3)
	joined := def.Nodes[2]
	assert.Equal(t, "joined", joined.ID)
	require.NotNil(t, joined.Dirty)
	assert.False(t, *joined.Dirty)
	assert.Equal(t, "hello world", joined.Cache["Result"])
}

func TestRunCommandFault(t *testing.T) {
	path := writeFile(t, "split.yaml", `
nodes:
  - id: s
    type: split
    properties:
      text: abc
      delimiter: ""
`)
	out, _, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, exitRuntime, exitCode(t, err))
	assert.Contains(t, out, "faulted nodes: Split")
}

func TestRunCommandMetrics(t *testing.T) {
	path := writeFile(t, "greeting.yaml", greetingYAML)
	_, stderr, err := execute(t, "run", path, "--metrics")
	require.NoError(t, err)
	assert.Contains(t, stderr, "nodeflow.node.executions 3")
	assert.Contains(t, stderr, "nodeflow.session.runs 1")
}

func TestRunCommandInvalidSchedule(t *testing.T) {
	path := writeFile(t, "greeting.yaml", greetingYAML)
	_, _, err := execute(t, "run", path, "--schedule", "not a schedule")
	require.Error(t, err)
	assert.Equal(t, exitValidation, exitCode(t, err))
}

func TestRunCommandUnknownCodec(t *testing.T) {
	path := writeFile(t, "greeting.yaml", greetingYAML)
	_, _, err := execute(t, "run", path, "--state-db", filepath.Join(t.TempDir(), "s.db"), "--codec", "xml")
	require.Error(t, err)
	assert.Equal(t, exitRuntime, exitCode(t, err))
}

func TestEnvFileLoaded(t *testing.T) {
	envPath := writeFile(t, "test.env", "NODEFLOW_TEST_VALUE=from-file\n")
	t.Setenv("NODEFLOW_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("NODEFLOW_TEST_VALUE"))

	root := NewRootCmd("test")
	root.SetArgs([]string{"types", "--env-file", envPath})
	root.SetOut(&bytes.Buffer{})
	require.NoError(t, root.Execute())
	assert.Equal(t, "from-file", os.Getenv("NODEFLOW_TEST_VALUE"))
}

func TestRunCommandVariables(t *testing.T) {
	path := writeFile(t, "vars.yaml", `
nodes:
  - id: greet
    type: static_text
    properties:
      text: "hello ${WHO} from ${PLACE:-home}"
`)
	out, _, err := execute(t, "run", path, "--var", "WHO=there", "--format", "json")
	require.NoError(t, err)

	var res jsonResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "hello there from home", res.Outputs["greet"]["Text"])

	_, _, err = execute(t, "run", path, "--strict-vars")
	require.Error(t, err)
	assert.Equal(t, exitValidation, exitCode(t, err))

	_, _, err = execute(t, "run", path, "--var", "=oops")
	assert.Equal(t, exitValidation, exitCode(t, err))
}
