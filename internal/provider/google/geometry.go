package google

import (
	"errors"
	"math"
)

// descriptorLandmarks is the fixed landmark order of a face descriptor.
var descriptorLandmarks = []string{
	"LEFT_EYE",
	"RIGHT_EYE",
	"LEFT_OF_LEFT_EYEBROW",
	"RIGHT_OF_LEFT_EYEBROW",
	"LEFT_OF_RIGHT_EYEBROW",
	"RIGHT_OF_RIGHT_EYEBROW",
	"MIDPOINT_BETWEEN_EYES",
	"NOSE_TIP",
	"NOSE_BOTTOM_LEFT",
	"NOSE_BOTTOM_RIGHT",
	"NOSE_BOTTOM_CENTER",
	"UPPER_LIP",
	"LOWER_LIP",
	"MOUTH_LEFT",
	"MOUTH_RIGHT",
	"MOUTH_CENTER",
	"CHIN_GNATHION",
	"CHIN_LEFT_GONION",
	"CHIN_RIGHT_GONION",
	"FOREHEAD_GLABELLA",
}

// maxMeanDistance is the mean landmark displacement, in inter-ocular
// units, at which similarity reaches zero.
const maxMeanDistance = 0.25

var errIncompleteLandmarks = errors.New("face annotation is missing landmarks")

// Descriptor builds a pose normalized landmark vector: coordinates are
// translated to the eye midpoint, rotated so the eyes are level and scaled
// by the inter-ocular distance.
func Descriptor(face FaceAnnotation) ([]float32, error) {
	pos := make(map[string]Position, len(face.Landmarks))
	for _, l := range face.Landmarks {
		pos[l.Type] = l.Position
	}

	left, okL := pos["LEFT_EYE"]
	right, okR := pos["RIGHT_EYE"]
	if !okL || !okR {
		return nil, errIncompleteLandmarks
	}

	dx, dy := right.X-left.X, right.Y-left.Y
	iod := math.Hypot(dx, dy)
	if iod == 0 {
		return nil, errIncompleteLandmarks
	}
	cx, cy := (left.X+right.X)/2, (left.Y+right.Y)/2
	cos, sin := dx/iod, dy/iod

	out := make([]float32, 0, 2*len(descriptorLandmarks))
	for _, name := range descriptorLandmarks {
		p, ok := pos[name]
		if !ok {
			return nil, errIncompleteLandmarks
		}
		x, y := p.X-cx, p.Y-cy
		// rotate by -roll
		rx := x*cos + y*sin
		ry := -x*sin + y*cos
		out = append(out, float32(rx/iod), float32(ry/iod))
	}
	return out, nil
}

// Similarity maps the mean landmark displacement of two descriptors to [0,1].
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 || len(a)%2 != 0 {
		return 0
	}
	var total float64
	n := len(a) / 2
	for i := 0; i < n; i++ {
		dx := float64(a[2*i] - b[2*i])
		dy := float64(a[2*i+1] - b[2*i+1])
		total += math.Hypot(dx, dy)
	}
	mean := total / float64(n)
	s := 1 - mean/maxMeanDistance
	if s < 0 {
		return 0
	}
	return s
}
