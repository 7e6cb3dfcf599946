package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, cfg.Threshold)
	assert.Len(t, cfg.Groups, 8)
	assert.Equal(t, DefaultFocusSequence, cfg.Reward.FocusSequence)
}

func TestValidate_ClampsThreshold(t *testing.T) {
	cases := map[float64]float64{
		0.3:  MinThreshold,
		1.7:  MaxThreshold,
		0.85: 0.85,
		0:    DefaultThreshold,
	}
	for in, want := range cases {
		cfg := DefaultConfig()
		cfg.Threshold = in
		require.NoError(t, cfg.Validate())
		assert.InDelta(t, want, cfg.Threshold, 1e-9, "input %v", in)
	}
}

func TestValidate_RepairsNumericFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scales = []float64{-1, 0}
	cfg.Keys.DebounceMs = -5
	cfg.Reward.PickSequence = []int{0, 3}
	cfg.Reward.PostGroupClaims = 9
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultScales, cfg.Scales)
	assert.Equal(t, 350, cfg.Keys.DebounceMs)
	assert.Equal(t, []int{1, 3}, cfg.Reward.PickSequence)
	assert.Equal(t, 2, cfg.Reward.PostGroupClaims)
}

func TestParse_YAML(t *testing.T) {
	data := []byte(`
threshold: 0.9
step_interval_ms: 1500
keys:
  trigger_key: F8
  debounce_ms: 200
reward:
  focus_sequence: [alpha]
groups:
  - name: alpha
    priority: 2
    index_template: a.png
    steps:
      - template: a.png
      - template: b.png
        wait_ms: 5000
      - template: c.png
`)
	cfg, err := Parse("cfg.yaml", data)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, cfg.Threshold, 1e-9)
	assert.Equal(t, 1500*time.Millisecond, cfg.StepInterval())
	assert.Equal(t, "F8", cfg.Keys.TriggerKey)
	require.Len(t, cfg.Groups, 1)

	defs, err := cfg.ResolveGroups()
	require.NoError(t, err)
	require.Len(t, defs[0].Steps, 3)
	assert.Equal(t, StepNormal, defs[0].Steps[0].Kind)
	assert.Equal(t, StepCustomWait, defs[0].Steps[1].Kind)
	assert.Equal(t, 5*time.Second, defs[0].Steps[1].Wait)
	assert.Equal(t, StepLastInGroup, defs[0].Steps[2].Kind)
	assert.Equal(t, []string{"a.png", "a.png", "b.png", "c.png"}, defs[0].Templates())
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse("cfg.json", []byte(`{"threshold":0.8,"nope":1}`))
	require.Error(t, err)
}

func TestParse_UnknownFocusGroup(t *testing.T) {
	_, err := Parse("cfg.json", []byte(`{"reward":{"focus_sequence":["missing"]}}`))
	require.ErrorIs(t, err, ErrUnknownGroup)
}

func TestParse_CustomGroupsDropDefaultFocusSequence(t *testing.T) {
	cfg, err := Parse("cfg.json", []byte(`{"groups":[{"name":"solo","priority":1,"index_template":"i.png","steps":[{"template":"s.png"}]}]}`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Reward.FocusSequence)

	cfg, err = Parse("cfg.json", []byte(`{"threshold":0.85}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultFocusSequence, cfg.Reward.FocusSequence, "default groups keep the default rotation")

	cfg, err = Parse("cfg.json", []byte(`{"reward":{"focus_sequence":[]}}`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Reward.FocusSequence, "an explicit empty rotation is kept")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cfg.json")
	cfg := DefaultConfig()
	cfg.Threshold = 0.88
	cfg.Keys.SafeMode = true
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.88, loaded.Threshold, 1e-9)
	assert.True(t, loaded.Keys.SafeMode)
	assert.Equal(t, cfg.Groups, loaded.Groups)
}

func TestLoad_DecodeErrorReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	cfg, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, DefaultThreshold, cfg.Threshold)
}

func TestClone_IsDeep(t *testing.T) {
	cfg := DefaultConfig()
	cl := cfg.Clone()
	cl.Scales[0] = 9
	cl.Groups[0].Steps[0].Template = "changed.png"
	cl.Reward.FocusSequence[0] = "x"
	assert.NotEqual(t, 9.0, cfg.Scales[0])
	assert.NotEqual(t, "changed.png", cfg.Groups[0].Steps[0].Template)
	assert.NotEqual(t, "x", cfg.Reward.FocusSequence[0])
}
