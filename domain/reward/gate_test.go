package reward

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/pixel-scheduler-go/config"
	"github.com/soocke/pixel-scheduler-go/domain/agent"
	"github.com/soocke/pixel-scheduler-go/domain/capture"
)

type screen struct {
	fail   bool
	frames int
}

func (s *screen) Capture(context.Context) (*capture.Frame, error) {
	s.frames++
	if s.fail {
		return nil, errors.New("no display")
	}
	return capture.NewFrame(image.NewRGBA(image.Rect(0, 0, 100, 100))), nil
}

type fakeMatcher struct {
	hits  map[string][]capture.MatchResult
	calls int
}

func (m *fakeMatcher) Match(_ context.Context, _ *capture.Frame, name string) (capture.MatchResult, bool) {
	m.calls++
	rs := m.hits[name]
	if len(rs) == 0 {
		return capture.MatchResult{}, false
	}
	return rs[0], true
}

func (m *fakeMatcher) MatchAll(_ context.Context, _ *capture.Frame, name string) []capture.MatchResult {
	m.calls++
	return m.hits[name]
}

type taps struct{ pts []image.Point }

func (t *taps) Tap(_ context.Context, x, y int) error {
	t.pts = append(t.pts, image.Pt(x, y))
	return nil
}
func (t *taps) Press(ctx context.Context, x, y int, _ time.Duration) error { return t.Tap(ctx, x, y) }

type focusRec struct {
	group string
	ttl   time.Duration
	sets  int
}

func (f *focusRec) Set(group string, ttl time.Duration) {
	f.group, f.ttl = group, ttl
	f.sets++
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func instantConfig() config.RewardConfig {
	cfg := config.DefaultConfig().Reward
	cfg.SettleMs, cfg.AfterProceedMs, cfg.RetryMs = 0, 0, 0
	return cfg
}

func proceedRow(n int) []capture.MatchResult {
	out := make([]capture.MatchResult, n)
	for i := range out {
		out[i] = capture.MatchResult{X: 100 * i, Y: 10, Width: 20, Height: 20, Similarity: 0.9}
	}
	return out
}

func newGate(t *testing.T, m *fakeMatcher, s *screen, f *focusRec) (*Gate, *taps) {
	t.Helper()
	in := &taps{}
	a := agent.New(agent.Options{Capturer: s, Matcher: m, Input: in, Logger: quiet()})
	return New(a, instantConfig(), f, quiet()), in
}

func TestPickOrdinal_WrapsAtSequenceLength(t *testing.T) {
	seq := []int{1, 1, 1, 2, 3, 4, 5, 2}
	assert.Equal(t, seq[0], PickOrdinal(seq, 0, 10))
	assert.Equal(t, seq[7], PickOrdinal(seq, 7, 10))
	assert.Equal(t, seq[0], PickOrdinal(seq, 8, 10))
	assert.Equal(t, seq[3], PickOrdinal(seq, 11, 10))
}

func TestPickOrdinal_ClampsToCandidates(t *testing.T) {
	seq := []int{5}
	assert.Equal(t, 2, PickOrdinal(seq, 0, 2))
	assert.Equal(t, 0, PickOrdinal(seq, 0, 0))
	assert.Equal(t, 1, PickOrdinal(nil, 3, 4))
}

func TestFocusTarget(t *testing.T) {
	seq := []string{"a", "b", "c"}
	g, ok := FocusTarget(seq, 4)
	require.True(t, ok)
	assert.Equal(t, "b", g)
	_, ok = FocusTarget(nil, 0)
	assert.False(t, ok)
}

func TestGate_ClaimTapsPickAndInstallsFocus(t *testing.T) {
	m := &fakeMatcher{hits: map[string][]capture.MatchResult{
		"jiangli.png":  {{X: 0, Y: 0, Width: 10, Height: 10, Similarity: 0.95}},
		"qianwang.jpg": proceedRow(3),
	}}
	f := &focusRec{}
	g, in := newGate(t, m, &screen{}, f)

	ok, err := g.Claim(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, in.pts, 2)
	assert.Equal(t, image.Pt(5, 5), in.pts[0])
	assert.Equal(t, image.Pt(10, 20), in.pts[1], "counter 0 picks the first candidate")
	assert.Equal(t, 1, g.Counter())
	assert.Equal(t, config.DefaultFocusSequence[0], f.group)
	assert.Equal(t, 30*time.Second, f.ttl)
}

func TestGate_CounterDrivesPickAndFocus(t *testing.T) {
	m := &fakeMatcher{hits: map[string][]capture.MatchResult{
		"jiangli.png":  {{Width: 10, Height: 10, Similarity: 0.95}},
		"qianwang.jpg": proceedRow(5),
	}}
	f := &focusRec{}
	g, in := newGate(t, m, &screen{}, f)
	g.counter.Store(3)

	ok, err := g.Claim(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	// seq[3] = 2 selects the second candidate.
	assert.Equal(t, image.Pt(110, 20), in.pts[1])
	assert.Equal(t, config.DefaultFocusSequence[3], f.group)
}

func TestGate_NoPrimaryNoAction(t *testing.T) {
	m := &fakeMatcher{hits: map[string][]capture.MatchResult{"qianwang.jpg": proceedRow(1)}}
	g, in := newGate(t, m, &screen{}, &focusRec{})
	ok, err := g.Claim(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, in.pts)
}

func TestGate_NoProceedReportsNoAction(t *testing.T) {
	m := &fakeMatcher{hits: map[string][]capture.MatchResult{
		"jiangli.png": {{Width: 10, Height: 10, Similarity: 0.95}},
	}}
	f := &focusRec{}
	g, in := newGate(t, m, &screen{}, f)
	ok, err := g.Claim(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, in.pts, 1, "the primary tap still happened")
	assert.Zero(t, f.sets)
	assert.Zero(t, g.Counter())
}

func TestGate_SkipFlagSuppressesNextCheck(t *testing.T) {
	m := &fakeMatcher{hits: map[string][]capture.MatchResult{
		"jiangli.png":  {{Width: 10, Height: 10, Similarity: 0.95}},
		"qianwang.jpg": proceedRow(2),
	}}
	g, in := newGate(t, m, &screen{}, &focusRec{})
	ctx := context.Background()

	ok, err := g.Check(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = g.Check(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "skip flag consumed")
	assert.Len(t, in.pts, 2)

	ok, err = g.Check(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, g.Counter())
}

func TestGate_ClaimNStopsOnFirstSuccess(t *testing.T) {
	m := &fakeMatcher{hits: map[string][]capture.MatchResult{
		"jiangli.png":  {{Width: 10, Height: 10, Similarity: 0.95}},
		"qianwang.jpg": proceedRow(1),
	}}
	s := &screen{}
	g, _ := newGate(t, m, s, &focusRec{})
	ok, err := g.ClaimN(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, g.Counter())
	assert.Equal(t, 2, s.frames)
}

func TestGate_ClaimNExhausts(t *testing.T) {
	s := &screen{}
	g, _ := newGate(t, &fakeMatcher{}, s, &focusRec{})
	ok, err := g.ClaimN(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, s.frames)
}

func TestGate_Interrupted(t *testing.T) {
	g, _ := newGate(t, &fakeMatcher{}, &screen{}, &focusRec{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.ClaimN(ctx, 2)
	assert.ErrorIs(t, err, agent.ErrInterrupted)
}

func TestGate_Disabled(t *testing.T) {
	m := &fakeMatcher{hits: map[string][]capture.MatchResult{"jiangli.png": {{Width: 1, Height: 1}}}}
	in := &taps{}
	a := agent.New(agent.Options{Capturer: &screen{}, Matcher: m, Input: in, Logger: quiet()})
	cfg := instantConfig()
	cfg.Enabled = false
	g := New(a, cfg, nil, quiet())
	ok, err := g.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, m.calls)
}
