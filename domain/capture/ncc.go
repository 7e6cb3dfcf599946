package capture

import (
	"image"
	"math"
	"slices"
	"sync/atomic"
)

// liveTemplates counts template buffers that have not been released.
var liveTemplates atomic.Int64

// grayPrecomp stores per-frame grayscale values and their summed-area tables
// (integral images). The integrals allow O(1) window sum and variance queries.
type grayPrecomp struct {
	gray       []float64 // per pixel grayscale (length W*H)
	integral   []float64 // summed-area table of grayscale
	integralSq []float64 // summed-area table of grayscale squared
	W, H       int
}

func (p *grayPrecomp) release() {
	releaseFloats(p.gray)
	releaseFloats(p.integral)
	releaseFloats(p.integralSq)
	p.gray, p.integral, p.integralSq = nil, nil, nil
}

// templatePrecomp holds grayscale pixels and summary statistics for a
// template at one scale.
type templatePrecomp struct {
	gray  []float64
	W, H  int
	meanT float64
	stdT  float64
}

func (t *templatePrecomp) release() {
	if t == nil || t.gray == nil {
		return
	}
	releaseFloats(t.gray)
	t.gray = nil
	liveTemplates.Add(-1)
}

func luma(r, g, b uint8) float64 {
	return 0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)
}

// buildGrayPrecomp computes per-pixel grayscale values and their summed-area
// tables for a frame. Alpha==0 pixels contribute zero.
func buildGrayPrecomp(frame *image.RGBA) *grayPrecomp {
	if frame == nil {
		return nil
	}
	b := frame.Bounds()
	W, H := b.Dx(), b.Dy()
	if W == 0 || H == 0 {
		return nil
	}
	need := W * H
	p := &grayPrecomp{
		gray:       acquireFloats(need),
		integral:   acquireFloats(need),
		integralSq: acquireFloats(need),
		W:          W,
		H:          H,
	}
	for y := 0; y < H; y++ {
		var rowSum, rowSum2 float64
		row := frame.Pix[y*frame.Stride : y*frame.Stride+W*4]
		for x := 0; x < W; x++ {
			px := row[x*4 : x*4+4]
			var g float64
			if px[3] != 0 {
				g = luma(px[0], px[1], px[2])
			}
			off := y*W + x
			p.gray[off] = g
			rowSum += g
			rowSum2 += g * g
			if y == 0 {
				p.integral[off] = rowSum
				p.integralSq[off] = rowSum2
			} else {
				p.integral[off] = p.integral[off-W] + rowSum
				p.integralSq[off] = p.integralSq[off-W] + rowSum2
			}
		}
	}
	return p
}

// buildTemplatePrecomp converts a template image to grayscale and computes its
// mean and standard deviation. Pixels with alpha==0 count as zero.
func buildTemplatePrecomp(tmpl image.Image) *templatePrecomp {
	if tmpl == nil {
		return nil
	}
	b := tmpl.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	gray := acquireFloats(w * h)
	var sumT, sumT2 float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bb, a := tmpl.At(b.Min.X+x, b.Min.Y+y).RGBA()
			if a == 0 {
				continue
			}
			v := luma(uint8(r>>8), uint8(g>>8), uint8(bb>>8))
			gray[y*w+x] = v
			sumT += v
			sumT2 += v * v
		}
	}
	n := float64(w * h)
	meanT := sumT / n
	varT := (sumT2 - sumT*sumT/n) / n
	stdT := 0.0
	if varT > 0 {
		stdT = math.Sqrt(varT)
	}
	liveTemplates.Add(1)
	return &templatePrecomp{gray: gray, W: w, H: h, meanT: meanT, stdT: stdT}
}

// integralSum returns the inclusive sum over rectangle [x0..x1] x [y0..y1]
// from an integral image stored in row-major order with width W.
func integralSum(I []float64, W int, x0, y0, x1, y1 int) float64 {
	if x0 > x1 || y0 > y1 {
		return 0
	}
	A := func(x, y int) float64 {
		if x < 0 || y < 0 {
			return 0
		}
		return I[y*W+x]
	}
	return A(x1, y1) - A(x0-1, y1) - A(x1, y0-1) + A(x0-1, y0-1)
}

// nccOptions configures the scan of one template scale over a frame.
type nccOptions struct {
	Stride int  // coarse scan stride
	Refine bool // with Stride>1, rescan every pixel around each peak
}

// scoreAt returns the normalized correlation coefficient of the template
// placed at (x,y). Flat windows score -1; a flat template scores 1 only
// against an identical flat window.
func scoreAt(p *grayPrecomp, t *templatePrecomp, x, y int) float64 {
	w, h := t.W, t.H
	n := float64(w * h)
	sumF := integralSum(p.integral, p.W, x, y, x+w-1, y+h-1)
	sumF2 := integralSum(p.integralSq, p.W, x, y, x+w-1, y+h-1)
	varF := (sumF2 - sumF*sumF/n) / n
	if t.stdT <= 1e-9 {
		if varF <= 1e-6 && math.Abs(sumF/n-t.meanT) <= 1e-6 {
			return 1
		}
		return -1
	}
	if varF <= 1e-9 {
		return -1
	}
	var sumFT float64
	for ty := 0; ty < h; ty++ {
		frow := p.gray[(y+ty)*p.W+x : (y+ty)*p.W+x+w]
		trow := t.gray[ty*w : (ty+1)*w]
		for i, v := range trow {
			sumFT += frow[i] * v
		}
	}
	denom := n * math.Sqrt(varF) * t.stdT
	if denom <= 0 {
		return -1
	}
	return (sumFT - sumF*t.meanT) / denom
}

// nccHit is one scored window position.
type nccHit struct {
	X, Y  int
	Score float64
}

func fits(p *grayPrecomp, t *templatePrecomp) bool {
	return p != nil && t != nil && t.W > 0 && t.H > 0 && p.W >= t.W && p.H >= t.H
}

// refineAround rescans every position within stride of (x,y) and returns the
// best one.
func refineAround(p *grayPrecomp, t *templatePrecomp, hit nccHit, stride int) nccHit {
	minY := max(0, hit.Y-stride)
	maxY := min(p.H-t.H, hit.Y+stride)
	minX := max(0, hit.X-stride)
	maxX := min(p.W-t.W, hit.X+stride)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if s := scoreAt(p, t, x, y); s > hit.Score {
				hit = nccHit{X: x, Y: y, Score: s}
			}
		}
	}
	return hit
}

// bestMatch returns the highest scoring window position. Score is -1 when the
// template does not fit the frame.
func bestMatch(p *grayPrecomp, t *templatePrecomp, opts nccOptions) nccHit {
	best := nccHit{Score: -1}
	if !fits(p, t) {
		return best
	}
	stride := max(1, opts.Stride)
	for y := 0; y <= p.H-t.H; y += stride {
		for x := 0; x <= p.W-t.W; x += stride {
			if s := scoreAt(p, t, x, y); s > best.Score {
				best = nccHit{X: x, Y: y, Score: s}
			}
		}
	}
	if opts.Refine && stride > 1 && best.Score > -1 {
		best = refineAround(p, t, best, stride)
	}
	return best
}

// allMatches returns up to limit non-overlapping positions scoring at least
// minScore, strongest first. Two positions overlap when they are closer than
// the template size on both axes.
func allMatches(p *grayPrecomp, t *templatePrecomp, opts nccOptions, minScore float64, limit int) []nccHit {
	if !fits(p, t) || limit <= 0 {
		return nil
	}
	stride := max(1, opts.Stride)
	// A coarse grid can undershoot a true peak by up to the refine window,
	// so candidates are gathered with some slack and checked after refining.
	gather := minScore
	if opts.Refine && stride > 1 {
		gather = minScore - 0.15
	}
	var cands []nccHit
	for y := 0; y <= p.H-t.H; y += stride {
		for x := 0; x <= p.W-t.W; x += stride {
			if s := scoreAt(p, t, x, y); s >= gather {
				cands = append(cands, nccHit{X: x, Y: y, Score: s})
			}
		}
	}
	slices.SortFunc(cands, func(a, b nccHit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	overlaps := func(a, b nccHit) bool {
		return absInt(a.X-b.X) < t.W && absInt(a.Y-b.Y) < t.H
	}
	var out []nccHit
	for _, c := range cands {
		if len(out) >= limit {
			break
		}
		if slices.ContainsFunc(out, func(k nccHit) bool { return overlaps(k, c) }) {
			continue
		}
		if opts.Refine && stride > 1 {
			c = refineAround(p, t, c, stride)
		}
		if c.Score < minScore {
			continue
		}
		if slices.ContainsFunc(out, func(k nccHit) bool { return overlaps(k, c) }) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// similarity maps a correlation coefficient onto [0,1].
func similarity(score float64) float64 {
	return math.Max(0, math.Min(1, score))
}
