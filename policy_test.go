package tandem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseApprovalPolicy(t *testing.T) {
	tests := map[string]ApprovalPolicy{
		"suggest":     PolicySuggest,
		"auto-edit":   PolicyAutoEdit,
		"AutoEdit":    PolicyAutoEdit,
		"full_auto":   PolicyFullAuto,
		" full-auto ": PolicyFullAuto,
	}
	for in, want := range tests {
		got, err := ParseApprovalPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
		assert.True(t, got.Valid())
	}

	_, err := ParseApprovalPolicy("yolo")
	assert.Error(t, err)
	assert.False(t, ApprovalPolicy("yolo").Valid())
}

func TestParsePatchArgs(t *testing.T) {
	t.Run("valid patch", func(t *testing.T) {
		p, err := ParsePatchArgs(`{"files":[{"path":"a.txt","op":"add","content":"hi"},{"path":"b.txt","op":"delete"}]}`)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "b.txt"}, p.Paths())
	})

	invalid := []string{
		`{"files":[]}`,
		`{"files":[{"op":"add"}]}`,
		`{"files":[{"path":"a","op":"rename"}]}`,
		`nope`,
	}
	for _, raw := range invalid {
		_, err := ParsePatchArgs(raw)
		assert.ErrorIs(t, err, ErrInvalidArguments, raw)
	}
}
