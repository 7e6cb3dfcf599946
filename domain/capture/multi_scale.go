package capture

import (
	"image"
	"math"
	"slices"
	"strconv"

	"github.com/disintegration/imaging"
)

// Reference geometry the templates were cut from.
const (
	referenceWidth  = 1080.0
	referenceHeight = 1920.0
)

// GuessScale derives a template scale from screen geometry. It falls back to
// 1.0 when the result is not a positive finite number.
func GuessScale(width, height int) float64 {
	g := math.Min(float64(width)/referenceWidth, float64(height)/referenceHeight)
	if math.IsNaN(g) || math.IsInf(g, 0) || g <= 0 {
		return 1.0
	}
	return g
}

// ScaleOrder returns the scales to try for one template: the cached scale
// (if positive), the guess, the ladder sorted by distance to the cached scale,
// the ladder sorted by distance to the guess, then the ladder itself.
// Duplicates (compared at 4 decimals) keep their first position.
func ScaleOrder(cached, guess float64, ladder []float64) []float64 {
	hasCached := cached > 0 && !math.IsInf(cached, 0)
	order := make([]float64, 0, 2+3*len(ladder))
	if hasCached {
		order = append(order, cached)
	}
	order = append(order, guess)
	if hasCached {
		order = append(order, byProximity(cached, ladder)...)
	}
	order = append(order, byProximity(guess, ladder)...)
	order = append(order, ladder...)
	return dedupScales(order)
}

func byProximity(center float64, ladder []float64) []float64 {
	out := slices.Clone(ladder)
	slices.SortStableFunc(out, func(a, b float64) int {
		da, db := math.Abs(a-center), math.Abs(b-center)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})
	return out
}

func dedupScales(in []float64) []float64 {
	seen := make(map[string]struct{}, len(in))
	out := make([]float64, 0, len(in))
	for _, v := range in {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			continue
		}
		k := strconv.FormatFloat(v, 'f', 4, 64)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// scaledTemplate resizes base by factor (never below minPx on either side)
// and returns its grayscale precomputation. The caller must release it.
func scaledTemplate(base image.Image, factor float64, minPx int) *templatePrecomp {
	b := base.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 || factor <= 0 {
		return nil
	}
	w := max(minPx, int(math.Round(float64(b.Dx())*factor)))
	h := max(minPx, int(math.Round(float64(b.Dy())*factor)))
	if w == b.Dx() && h == b.Dy() {
		return buildTemplatePrecomp(base)
	}
	return buildTemplatePrecomp(imaging.Resize(base, w, h, imaging.Linear))
}
