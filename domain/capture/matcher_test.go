package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// noise returns a deterministic gray noise image.
func noise(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(rng.Intn(256))
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func paste(dst *image.RGBA, src image.Image, x, y int) {
	b := src.Bounds()
	draw.Draw(dst, image.Rect(x, y, x+b.Dx(), y+b.Dy()), src, b.Min, draw.Src)
}

type mapHints struct {
	mu sync.Mutex
	m  map[string]float64
}

func newMapHints() *mapHints { return &mapHints{m: map[string]float64{}} }

func (h *mapHints) Get(_ context.Context, name string) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.m[name]
	return v, ok
}

func (h *mapHints) Put(_ context.Context, name string, scale float64) {
	h.mu.Lock()
	h.m[name] = scale
	h.mu.Unlock()
}

func testOptions(scales ...float64) MatcherOptions {
	return MatcherOptions{
		Threshold:    0.8,
		Scales:       scales,
		Stride:       1,
		ScreenWidth:  1080,
		ScreenHeight: 1920,
	}
}

func TestMatcher_MatchFindsPastedTemplate(t *testing.T) {
	tmpl := noise(40, 40, 1)
	frameImg := noise(200, 150, 2)
	paste(frameImg, tmpl, 60, 50)

	templates := NewMemTemplates()
	templates.Set("btn.png", tmpl)
	hints := newMapHints()
	m := NewMatcher(testOptions(1.0, 1.2), templates, hints, discardLogger())

	f := NewFrame(frameImg)
	defer f.Release()
	res, ok := m.Match(context.Background(), f, "btn.png")
	require.True(t, ok)
	assert.Equal(t, 60, res.X)
	assert.Equal(t, 50, res.Y)
	assert.Equal(t, 40, res.Width)
	assert.InDelta(t, 1.0, res.Similarity, 1e-6)
	assert.Equal(t, image.Pt(80, 70), res.Center())

	cached, ok := hints.Get(context.Background(), "btn.png")
	require.True(t, ok)
	assert.InDelta(t, 1.0, cached, 1e-9)
}

func TestMatcher_MatchMissesUnrelatedTemplate(t *testing.T) {
	templates := NewMemTemplates()
	templates.Set("other.png", noise(40, 40, 7))
	hints := newMapHints()
	m := NewMatcher(testOptions(1.0), templates, hints, discardLogger())

	f := NewFrame(noise(160, 120, 3))
	defer f.Release()
	_, ok := m.Match(context.Background(), f, "other.png")
	assert.False(t, ok)
	_, cached := hints.Get(context.Background(), "other.png")
	assert.False(t, cached, "misses must not write the scale cache")
}

func TestMatcher_ThresholdIsStrict(t *testing.T) {
	tmpl := noise(40, 40, 1)
	frameImg := noise(120, 100, 2)
	paste(frameImg, tmpl, 10, 10)
	templates := NewMemTemplates()
	templates.Set("t", tmpl)
	m := NewMatcher(testOptions(1.0), templates, nil, discardLogger())

	f := NewFrame(frameImg)
	defer f.Release()
	_, ok := m.Match(context.Background(), f, "t")
	require.True(t, ok)

	assert.InDelta(t, 1.0, m.SetThreshold(1.0), 1e-9)
	_, ok = m.Match(context.Background(), f, "t")
	assert.False(t, ok, "similarity can never exceed a threshold of 1.0")
}

func TestMatcher_TemplateLoadFailure(t *testing.T) {
	m := NewMatcher(testOptions(1.0), NewMemTemplates(), nil, discardLogger())
	f := NewFrame(noise(64, 64, 1))
	defer f.Release()
	_, ok := m.Match(context.Background(), f, "missing.png")
	assert.False(t, ok)
	assert.Empty(t, m.MatchAll(context.Background(), f, "missing.png"))
}

func TestMatcher_MatchAllDedupsAndSortsByX(t *testing.T) {
	tmpl := noise(40, 40, 11)
	frameImg := noise(340, 120, 12)
	for _, x := range []int{230, 10, 120} {
		paste(frameImg, tmpl, x, 40)
	}
	templates := NewMemTemplates()
	templates.Set("go.png", tmpl)
	hints := newMapHints()
	m := NewMatcher(testOptions(1.0, 0.95), templates, hints, discardLogger())

	f := NewFrame(frameImg)
	defer f.Release()
	res := m.MatchAll(context.Background(), f, "go.png")
	require.Len(t, res, 3)
	assert.Equal(t, []int{10, 120, 230}, []int{res[0].X, res[1].X, res[2].X})
	for _, r := range res {
		assert.Equal(t, 40, r.Y)
		assert.InDelta(t, 1.0, r.Scale, 1e-9)
		assert.Greater(t, r.Similarity, 0.8)
	}
	for i := range res {
		for j := i + 1; j < len(res); j++ {
			near := absInt(res[i].X-res[j].X) < 50 && absInt(res[i].Y-res[j].Y) < 50
			assert.False(t, near, "results %d and %d are duplicates", i, j)
		}
	}
	cached, ok := hints.Get(context.Background(), "go.png")
	require.True(t, ok)
	assert.InDelta(t, 1.0, cached, 1e-9)
}

func TestMatcher_ReleasesTemplateBuffers(t *testing.T) {
	tmpl := noise(40, 40, 21)
	frameImg := noise(200, 150, 22)
	paste(frameImg, tmpl, 30, 30)
	templates := NewMemTemplates()
	templates.Set("t.png", tmpl)
	m := NewMatcher(testOptions(1.0, 1.2, 0.9), templates, newMapHints(), discardLogger())
	f := NewFrame(frameImg)
	defer f.Release()

	before := liveTemplates.Load()
	_, ok := m.Match(context.Background(), f, "t.png")
	require.True(t, ok)
	assert.Equal(t, before, liveTemplates.Load(), "good-enough early stop")

	require.NotEmpty(t, m.MatchAll(context.Background(), f, "t.png"))
	assert.Equal(t, before, liveTemplates.Load())

	templates.Set("miss.png", noise(40, 40, 23))
	_, ok = m.Match(context.Background(), f, "miss.png")
	require.False(t, ok)
	assert.Equal(t, before, liveTemplates.Load(), "full ladder without a hit")
}

func TestMatcher_UsesCachedScaleFirst(t *testing.T) {
	frameImg := noise(200, 200, 6)
	hints := newMapHints()
	hints.Put(context.Background(), "t", 1.5)
	m := NewMatcher(testOptions(1.0, 1.5), NewMemTemplates(), hints, discardLogger())
	order := m.scaleOrder(context.Background(), "t", NewFrame(frameImg), m.snapshot())
	assert.Equal(t, []float64{1.5, 1.0}, order)

	hints = newMapHints()
	m = NewMatcher(testOptions(1.0, 1.5), NewMemTemplates(), hints, discardLogger())
	order = m.scaleOrder(context.Background(), "t", NewFrame(frameImg), m.snapshot())
	assert.Equal(t, []float64{1.0, 1.5}, order, "without a hint the geometry guess goes first")
}

func TestScaleOrder(t *testing.T) {
	ladder := []float64{0.8, 0.85, 0.9, 1.0, 1.1}
	assert.Equal(t, []float64{0.85, 1.0, 0.8, 0.9, 1.1}, ScaleOrder(0.85, 1.0, ladder))
	assert.Equal(t, []float64{1.0, 0.9, 1.1, 0.85, 0.8}, ScaleOrder(0, 1.0, ladder))
	// values equal at 4 decimals collapse onto the first one seen
	got := ScaleOrder(0.850001, 1.0, ladder)
	assert.InDelta(t, 0.850001, got[0], 1e-12)
	assert.Len(t, got, 5)
}

func TestGuessScale(t *testing.T) {
	assert.InDelta(t, 1.0, GuessScale(1080, 1920), 1e-9)
	assert.InDelta(t, 0.5, GuessScale(540, 1920), 1e-9)
	assert.InDelta(t, 1.0, GuessScale(0, 0), 1e-9)
	assert.InDelta(t, 1.0, GuessScale(-5, 100), 1e-9)
}

func TestScaledTemplate_MinimumSize(t *testing.T) {
	tp := scaledTemplate(noise(40, 20, 1), 0.1, 30)
	require.NotNil(t, tp)
	defer tp.release()
	assert.Equal(t, 30, tp.W)
	assert.Equal(t, 30, tp.H)
}

func TestDedupMatches(t *testing.T) {
	raw := []MatchResult{
		{X: 0, Y: 0, Scale: 1.0},
		{X: 49, Y: 49, Scale: 0.9},
		{X: 50, Y: 0, Scale: 0.9},
		{X: 200, Y: 10, Scale: 0.8},
	}
	out := dedupMatches(raw, 50)
	require.Len(t, out, 3)
	assert.InDelta(t, 1.0, out[0].Scale, 1e-9, "first seen survives")
	assert.Equal(t, 50, out[1].X)
}

func TestLeftmost(t *testing.T) {
	_, ok := Leftmost(nil)
	assert.False(t, ok)
	r, ok := Leftmost([]MatchResult{{X: 30}, {X: 5}, {X: 12}})
	require.True(t, ok)
	assert.Equal(t, 5, r.X)
}

func TestFrame_ReleaseIdempotent(t *testing.T) {
	f := NewFrame(image.NewNRGBA(image.Rect(0, 0, 8, 8)))
	require.NotNil(t, f.precomp())
	f.Release()
	f.Release()
	var nilFrame *Frame
	nilFrame.Release()
}

type flakyCapturer struct {
	fails int
	calls int
}

func (c *flakyCapturer) Capture(context.Context) (*Frame, error) {
	c.calls++
	if c.calls <= c.fails {
		return nil, errors.New("no permission")
	}
	return NewFrame(image.NewRGBA(image.Rect(0, 0, 4, 4))), nil
}

func TestEnsureCapture(t *testing.T) {
	c := &flakyCapturer{}
	require.NoError(t, EnsureCapture(context.Background(), c, 3, time.Millisecond, discardLogger()))
	assert.Equal(t, 1, c.calls)

	// One probe plus three re-requests; the last re-request succeeds.
	c = &flakyCapturer{fails: 3}
	require.NoError(t, EnsureCapture(context.Background(), c, 3, time.Millisecond, discardLogger()))
	assert.Equal(t, 4, c.calls)

	c = &flakyCapturer{fails: 9}
	err := EnsureCapture(context.Background(), c, 3, time.Millisecond, discardLogger())
	require.ErrorIs(t, err, ErrCaptureUnavailable)
	assert.Equal(t, 4, c.calls)

	c = &flakyCapturer{fails: 9}
	require.Error(t, EnsureCapture(context.Background(), c, 0, time.Millisecond, discardLogger()))
	assert.Equal(t, 1, c.calls, "zero re-requests still probes once")
}

func TestScreenGrabber_CountsFailures(t *testing.T) {
	calls := 0
	g := NewGrabber(func() (*image.RGBA, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("boom")
		}
		return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
	}, discardLogger())

	_, err := g.Capture(context.Background())
	require.ErrorIs(t, err, ErrCaptureUnavailable)
	f, err := g.Capture(context.Background())
	require.NoError(t, err)
	defer f.Release()
	assert.Equal(t, uint64(1), f.Sequence)

	st := g.Stats()
	assert.Equal(t, uint64(1), st.Captures)
	assert.Equal(t, uint64(1), st.Failures)
}

func TestThrottledGrabber_Unlimited(t *testing.T) {
	c := &flakyCapturer{}
	tg := NewThrottledGrabber(c, 0)
	for i := 0; i < 5; i++ {
		f, err := tg.Capture(context.Background())
		require.NoError(t, err)
		f.Release()
	}
	assert.Equal(t, uint64(0), tg.Throttled())
}
