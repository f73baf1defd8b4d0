package tandem

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShellArgs(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		argv    []string
		wantErr bool
	}{
		{name: "cmd key", raw: `{"cmd":["ls","-la"],"workdir":"."}`, argv: []string{"ls", "-la"}},
		{name: "command alias", raw: `{"command":["pwd"]}`, argv: []string{"pwd"}},
		{name: "empty cmd", raw: `{"cmd":[]}`, wantErr: true},
		{name: "empty program", raw: `{"cmd":[""]}`, wantErr: true},
		{name: "cmd not array", raw: `{"cmd":"ls"}`, wantErr: true},
		{name: "negative timeout", raw: `{"cmd":["ls"],"timeout":-1}`, wantErr: true},
		{name: "not json", raw: `ls`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := ParseShellArgs(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidArguments)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.argv, args.Argv())
		})
	}
}

func TestParseSelectArgs(t *testing.T) {
	args, err := ParseSelectArgs(`{"question":"Pick","options":["a","b"]}`)
	require.NoError(t, err)
	assert.Equal(t, "Pick", args.Question)
	assert.Equal(t, []string{"a", "b"}, args.Options)

	_, err = ParseSelectArgs(`{"question":"Pick","options":[]}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)

	_, err = ParseSelectArgs(`{"options":["a"]}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestNativeTools(t *testing.T) {
	tools := NativeTools()
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
		var schema map[string]any
		require.NoError(t, json.Unmarshal(tool.Parameters, &schema), tool.Name)
		assert.Equal(t, "object", schema["type"])
	}
	assert.Equal(t, []string{ToolShell, ToolApplyPatch, ToolUserSelect}, names)
	assert.Contains(t, string(tools[0].Parameters), `"required":["cmd"]`)
	assert.Contains(t, string(tools[1].Parameters), `"enum":["add","update","delete"]`)
}

func TestNewErrorResult(t *testing.T) {
	r := NewErrorResult(ToolCall{ID: "c1", Name: "shell"}, "denied: %s", "nope")
	assert.Equal(t, "c1", r.ToolCallID)
	assert.Equal(t, "shell", r.Name)
	assert.Equal(t, "denied: nope", r.Content)
	assert.True(t, r.IsError)
}
