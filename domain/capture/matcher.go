package capture

import (
	"context"
	"image"
	"log/slog"
	"math"
	"slices"
	"sync"
)

// MatcherOptions holds the matching parameters. Zero values are replaced by
// defaults in NewMatcher.
type MatcherOptions struct {
	Threshold       float64
	Scales          []float64
	GoodEnoughScore float64
	MinTemplatePx   int
	Stride          int
	Refine          bool
	DedupRadiusPx   int
	MaxPerScale     int
	// Known screen geometry for the scale guess; zero uses the frame size.
	ScreenWidth  int
	ScreenHeight int
}

func (o MatcherOptions) withDefaults() MatcherOptions {
	if o.Threshold <= 0 {
		o.Threshold = 0.8
	}
	if o.GoodEnoughScore <= 0 {
		o.GoodEnoughScore = 0.92
	}
	if o.MinTemplatePx <= 0 {
		o.MinTemplatePx = 30
	}
	if o.Stride <= 0 {
		o.Stride = 1
	}
	if o.DedupRadiusPx <= 0 {
		o.DedupRadiusPx = 50
	}
	if o.MaxPerScale <= 0 {
		o.MaxPerScale = 10
	}
	o.Scales = slices.Clone(o.Scales)
	return o
}

// Matcher locates templates in frames across a scale search space and
// remembers the winning scale per template.
type Matcher struct {
	mu        sync.RWMutex
	opts      MatcherOptions
	templates TemplateSource
	hints     ScaleHints
	logger    *slog.Logger
}

// NewMatcher builds a matcher. hints may be nil to disable scale memoization.
func NewMatcher(opts MatcherOptions, templates TemplateSource, hints ScaleHints, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{opts: opts.withDefaults(), templates: templates, hints: hints, logger: logger}
}

// SetThreshold updates the similarity threshold and returns the applied value.
func (m *Matcher) SetThreshold(v float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
		m.opts.Threshold = v
	}
	return m.opts.Threshold
}

// Threshold returns the current similarity threshold.
func (m *Matcher) Threshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opts.Threshold
}

func (m *Matcher) snapshot() MatcherOptions {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opts
}

func (m *Matcher) scaleOrder(ctx context.Context, name string, f *Frame, opts MatcherOptions) []float64 {
	var cached float64
	if m.hints != nil {
		if s, ok := m.hints.Get(ctx, name); ok {
			cached = s
		}
	}
	w, h := opts.ScreenWidth, opts.ScreenHeight
	if w <= 0 || h <= 0 {
		w, h = f.Width(), f.Height()
	}
	return ScaleOrder(cached, GuessScale(w, h), opts.Scales)
}

func (m *Matcher) remember(ctx context.Context, name string, scale float64) {
	if m.hints != nil {
		m.hints.Put(ctx, name, scale)
	}
}

// Match returns the best occurrence of the named template whose similarity
// exceeds the threshold. The search stops at the first scale reaching the
// good-enough score.
func (m *Matcher) Match(ctx context.Context, f *Frame, name string) (MatchResult, bool) {
	if f == nil {
		return MatchResult{}, false
	}
	opts := m.snapshot()
	base, err := m.templates.Load(name)
	if err != nil {
		m.logger.Error("template load failed", "template", name, "error", err)
		return MatchResult{}, false
	}
	pre := f.precomp()
	if pre == nil {
		return MatchResult{}, false
	}
	nopts := nccOptions{Stride: opts.Stride, Refine: opts.Refine}

	var best MatchResult
	found := false
	for _, scale := range m.scaleOrder(ctx, name, f, opts) {
		if ctx.Err() != nil {
			break
		}
		r, ok := bestAtScale(pre, base, scale, opts, nopts)
		if !ok {
			continue
		}
		if r.Similarity > opts.Threshold && r.Similarity > best.Similarity {
			best = r
			found = true
		}
		if best.Similarity >= opts.GoodEnoughScore {
			break
		}
	}
	if !found {
		return MatchResult{}, false
	}
	m.remember(ctx, name, best.Scale)
	return best, true
}

// MatchAll returns every distinct occurrence of the named template, sorted by
// ascending x. Occurrences whose anchors are closer than the dedup radius on
// both axes count once; the one found first in scale order wins.
func (m *Matcher) MatchAll(ctx context.Context, f *Frame, name string) []MatchResult {
	if f == nil {
		return nil
	}
	opts := m.snapshot()
	base, err := m.templates.Load(name)
	if err != nil {
		m.logger.Error("template load failed", "template", name, "error", err)
		return nil
	}
	pre := f.precomp()
	if pre == nil {
		return nil
	}
	nopts := nccOptions{Stride: opts.Stride, Refine: opts.Refine}
	// Hits must strictly exceed the threshold; nextafter turns the kernel's
	// inclusive bound into an exclusive one.
	minScore := math.Nextafter(opts.Threshold, math.Inf(1))

	var raw []MatchResult
	for _, scale := range m.scaleOrder(ctx, name, f, opts) {
		if ctx.Err() != nil {
			break
		}
		raw = append(raw, allAtScale(pre, base, scale, opts, nopts, minScore)...)
	}

	out := dedupMatches(raw, opts.DedupRadiusPx)
	if len(out) == 0 {
		return nil
	}
	top := out[0]
	for _, r := range out[1:] {
		if r.Similarity > top.Similarity {
			top = r
		}
	}
	m.remember(ctx, name, top.Scale)
	slices.SortStableFunc(out, func(a, b MatchResult) int { return a.X - b.X })
	return out
}

// bestAtScale returns the best window for base resized by scale. It reports
// false when the template cannot be built at that scale.
func bestAtScale(pre *grayPrecomp, base image.Image, scale float64, opts MatcherOptions, nopts nccOptions) (MatchResult, bool) {
	tp := scaledTemplate(base, scale, opts.MinTemplatePx)
	if tp == nil {
		return MatchResult{}, false
	}
	defer tp.release()
	hit := bestMatch(pre, tp, nopts)
	return MatchResult{X: hit.X, Y: hit.Y, Width: tp.W, Height: tp.H, Similarity: similarity(hit.Score), Scale: scale}, true
}

// allAtScale returns every window scoring at least minScore for base resized
// by scale.
func allAtScale(pre *grayPrecomp, base image.Image, scale float64, opts MatcherOptions, nopts nccOptions, minScore float64) []MatchResult {
	tp := scaledTemplate(base, scale, opts.MinTemplatePx)
	if tp == nil {
		return nil
	}
	defer tp.release()
	hits := allMatches(pre, tp, nopts, minScore, opts.MaxPerScale)
	out := make([]MatchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, MatchResult{X: h.X, Y: h.Y, Width: tp.W, Height: tp.H, Similarity: similarity(h.Score), Scale: scale})
	}
	return out
}

// dedupMatches keeps the first of every cluster of results whose anchors lie
// within radius on both axes.
func dedupMatches(raw []MatchResult, radius int) []MatchResult {
	var out []MatchResult
	for _, r := range raw {
		dup := slices.ContainsFunc(out, func(k MatchResult) bool {
			return absInt(k.X-r.X) < radius && absInt(k.Y-r.Y) < radius
		})
		if !dup {
			out = append(out, r)
		}
	}
	return out
}

// Leftmost returns the occurrence with the smallest x.
func Leftmost(results []MatchResult) (MatchResult, bool) {
	if len(results) == 0 {
		return MatchResult{}, false
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.X < best.X {
			best = r
		}
	}
	return best, true
}
