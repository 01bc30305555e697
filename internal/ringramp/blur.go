package ringramp

import (
	"math"

	"libdb.so/lightshow/internal/lights"
)

// erfCutoff is where a pixel's share of the light stops being worth
// spreading further; the remaining tail lands on the outermost pixel.
const erfCutoff = 0.992

// Weight is the share of a point source's light that falls on a pixel.
type Weight struct {
	Pixel  int
	Weight float64
}

// GaussianBlurWeights spreads a point source at pixel coordinate x over the
// neighbouring integer pixels with a Gaussian of the given blur. The pixels
// are contiguous, the weights sum to 1, and the smallest weights are around
// 1/255. A zero blur puts everything on the nearest pixel, and so does a blur
// too sharp to give any neighbour a visible share, even if x is off the
// pixel's centre.
func GaussianBlurWeights(x, blur float64) []Weight {
	nearest := int(math.Round(x))
	if blur == 0 {
		return []Weight{{Pixel: nearest, Weight: 1}}
	}

	sharp := 1 / blur
	offset := float64(nearest) - x

	// edge returns the cumulative share of light left of pixel i.
	edge := func(i int) float64 {
		return math.Erf(sharp * (float64(i-nearest) - 0.5 + offset))
	}

	type boundary struct {
		pixel int
		erf   float64
	}

	var left []boundary
	for i := nearest; ; i-- {
		e := edge(i)
		if e < -erfCutoff {
			break
		}
		left = append(left, boundary{i, e})
	}

	var right []boundary
	for i := nearest + 1; ; i++ {
		e := edge(i)
		if e > erfCutoff {
			break
		}
		right = append(right, boundary{i, e})
	}

	if len(left)+len(right) == 0 {
		return []Weight{{Pixel: nearest, Weight: 1}}
	}

	edges := make([]boundary, 0, len(left)+len(right))
	for i := len(left) - 1; i >= 0; i-- {
		edges = append(edges, left[i])
	}
	edges = append(edges, right...)

	weights := make([]Weight, 0, len(edges)+1)
	prior := -1.0
	for _, b := range edges {
		weights = append(weights, Weight{Pixel: b.pixel - 1, Weight: 0.5 * (b.erf - prior)})
		prior = b.erf
	}
	last := edges[len(edges)-1]
	weights = append(weights, Weight{Pixel: last.pixel, Weight: 0.5 * (1 - last.erf)})

	return weights
}

// Contribution is the part of a color drawn on one pixel.
type Contribution struct {
	Pixel int
	Color lights.Color
}

// DisplayList splits color over the pixels around x using
// GaussianBlurWeights. Pixels whose share rounds to black are left out.
func DisplayList(x float64, color lights.Color, blur float64) []Contribution {
	weights := GaussianBlurWeights(x, blur)
	out := make([]Contribution, 0, len(weights))
	for _, w := range weights {
		var c lights.Color
		for k, v := range color {
			c[k] = int(math.Round(float64(v) * w.Weight))
		}
		if !c.IsZero() {
			out = append(out, Contribution{Pixel: w.Pixel, Color: c})
		}
	}
	return out
}
