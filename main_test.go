package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

const sampleCall = `{"id":"c1","inputs":{"model":"gpt-4o","messages":[{"role":"user","content":"weave:///e/p/object/q:1"}]},"output":{"choices":[{"index":0,"message":{"role":"assistant","content":"42"},"finish_reason":"stop"}]}}`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReadCallAcceptsEnvelope(t *testing.T) {
	call, err := readCall("", strings.NewReader(`{"call":`+sampleCall+`}`))
	require.NoError(t, err)
	assert.Equal(t, "c1", call.ID)

	call, err = readCall("-", strings.NewReader(sampleCall))
	require.NoError(t, err)
	assert.Equal(t, "c1", call.ID)

	_, err = readCall("", strings.NewReader("  "))
	assert.Error(t, err)
	_, err = readCall("", strings.NewReader(`{"foo":1}`))
	assert.Error(t, err)
}

func TestClassifyCommand(t *testing.T) {
	out, err := execute(t, sampleCall, "classify")
	require.NoError(t, err)
	assert.Equal(t, "openai", gjson.Get(out, "format").String())
	assert.True(t, gjson.Get(out, "is_chat").Bool())
}

func TestRefsCommandYAML(t *testing.T) {
	out, err := execute(t, sampleCall, "refs", "-o", "yaml")
	require.NoError(t, err)
	var got struct {
		Refs []string `yaml:"refs"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"weave:///e/p/object/q:1"}, got.Refs)
	assert.NotContains(t, out, "{")
}

func TestChatCommandWithStaticRefs(t *testing.T) {
	dir := t.TempDir()
	callFile := filepath.Join(dir, "call.json")
	refsFile := filepath.Join(dir, "refs.json")
	require.NoError(t, os.WriteFile(callFile, []byte(sampleCall), 0o600))
	require.NoError(t, os.WriteFile(refsFile, []byte(`{"weave:///e/p/object/q:1":"what is the answer?"}`), 0o600))

	out, err := execute(t, "", "chat", "--file", callFile, "--refs", refsFile)
	require.NoError(t, err)
	assert.Equal(t, "what is the answer?", gjson.Get(out, "request.messages.0.content").String())
	assert.Equal(t, "42", gjson.Get(out, "completion.choices.0.message.content").String())
	assert.False(t, gjson.Get(out, "loading").Bool())
}

func TestModelsResolve(t *testing.T) {
	out, err := execute(t, "", "models", "--resolve", "openai/gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", gjson.Get(out, "model").String())
	assert.Equal(t, "openai", gjson.Get(out, "provider").String())
}

func TestUnknownOutputFormat(t *testing.T) {
	_, err := execute(t, sampleCall, "classify", "--output", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestJSONToYAMLKeepsOrderAndTypes(t *testing.T) {
	out, err := jsonToYAML([]byte(`{"b":"123","a":[1,true],"c":null,"d":"x: y"}`))
	require.NoError(t, err)
	text := string(out)
	assert.True(t, strings.HasPrefix(text, "b: "), text)
	assert.Less(t, strings.Index(text, "b:"), strings.Index(text, "a:"))

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, "123", back["b"])
	assert.Equal(t, []any{1, true}, back["a"])
	assert.Nil(t, back["c"])
	assert.Equal(t, "x: y", back["d"])
}
