package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/answerflow/types"
)

// TestDefaultsValidate verifies the shipped defaults pass validation.
func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Pipeline.MaxSubQuestions)
	assert.Equal(t, string(types.VerdictNo), cfg.Pipeline.VerifyParseDefault)
	assert.Equal(t, 30*time.Second, cfg.LLM.CallTimeout.Std())
}

// TestLoadYAMLOverridesDefaults verifies file values win over defaults while
// unset fields keep them.
func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answerflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  primary_model: big-model
  fast_model: small-model
pipeline:
  max_sub_questions: 5
  enable_deepen: true
  rewrite_count: 3
  include_original: true
  docs_per_variant: 4
  search_timeout: 15s
  verify_parse_default: "yes"
  tie_break: keep_highest_score
  max_sections_per_prompt: 10
  max_concurrency: 16
cache:
  redis_addr: localhost:6379
  ttl: 1h
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "big-model", cfg.LLM.PrimaryModel)
	assert.Equal(t, 5, cfg.Pipeline.MaxSubQuestions)
	assert.True(t, cfg.Pipeline.EnableDeepen)
	assert.Equal(t, "keep_highest_score", cfg.Pipeline.TieBreak)
	assert.Equal(t, time.Hour, cfg.Cache.TTL.Std())
	// Untouched defaults survive.
	assert.Equal(t, 30*time.Second, cfg.LLM.CallTimeout.Std())
}

// TestLoadEnvOverrides verifies environment variables win over the file.
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ANSWERFLOW_PRIMARY_MODEL", "env-model")
	t.Setenv("ANSWERFLOW_MAX_SUB_QUESTIONS", "7")
	t.Setenv("ANSWERFLOW_ENABLE_DEEPEN", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.LLM.PrimaryModel)
	assert.Equal(t, 7, cfg.Pipeline.MaxSubQuestions)
	assert.True(t, cfg.Pipeline.EnableDeepen)
}

// TestLoadMissingFile verifies a bad path errors.
func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// TestValidateRejectsBadValues verifies each invariant.
func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Pipeline.MaxSubQuestions = 0
	assert.ErrorContains(t, cfg.Validate(), "max_sub_questions")

	cfg = Defaults()
	cfg.Pipeline.DocsPerVariant = -1
	assert.ErrorContains(t, cfg.Validate(), "docs_per_variant")

	cfg = Defaults()
	cfg.Pipeline.VerifyParseDefault = "maybe"
	assert.ErrorContains(t, cfg.Validate(), "verify_parse_default")

	cfg = Defaults()
	cfg.Pipeline.TieBreak = "keep_random"
	assert.ErrorContains(t, cfg.Validate(), "tie_break")
}

// TestConversions verifies the config maps onto the runtime structs.
func TestConversions(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.PrimaryModel = "big"
	cfg.LLM.FastModel = "small"
	cfg.Pipeline.TieBreak = string(types.TieBreakKeepHighestScore)

	gw := cfg.Gateway()
	assert.Equal(t, "big", gw.PrimaryModel)
	assert.Equal(t, "small", gw.FastModel)

	ans := cfg.Answer()
	assert.Equal(t, cfg.Pipeline.MaxSubQuestions, ans.MaxSubQuestions)
	assert.Equal(t, types.TieBreakKeepHighestScore, ans.Retrieval.TieBreak)
	assert.Equal(t, types.VerdictNo, ans.Retrieval.VerifyParseDefault)
}
