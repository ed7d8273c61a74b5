package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRender(t *testing.T) {
	out := Render("Q: {current_question} A: {user_answer}", map[string]string{
		"current_question": "How was combat?",
		"user_answer":      "Too hard",
	})
	assert.Equal(t, "Q: How was combat? A: Too hard", out)
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	set := r.Current()
	assert.NotEmpty(t, set.Classify)
	assert.NotEmpty(t, set.RefusalNudge)
}

func TestLoadFileOverridesAndKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("refusal_nudge: please share a bit more\n"), 0o644))

	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.LoadFile(path))

	set := r.Current()
	assert.Equal(t, "please share a bit more", set.RefusalNudge)
	assert.Equal(t, Defaults().Classify, set.Classify, "unset fields keep defaults")
}

func TestLoadFileRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_template: x\n"), 0o644))

	r := NewRegistry(zap.NewNop())
	err := r.LoadFile(path)
	require.Error(t, err)
	// a failed load keeps the previous set
	assert.Equal(t, Defaults().RefusalNudge, r.Current().RefusalNudge)
}
