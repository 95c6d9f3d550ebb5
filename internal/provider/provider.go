package provider

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

// FaceProvider define a interface para provedores de reconhecimento facial
type FaceProvider interface {
	// Type returns the tag stamped on every FaceID this provider issues.
	Type() domain.ProviderType

	// Extract detects the most prominent face in image and returns its
	// provider identifier. Returns domain.ErrNoFaceDetected when no face is found.
	Extract(ctx context.Context, image []byte) (domain.FaceID, error)

	// Compare returns the similarity of two faces in [0,1]. referenceImage
	// lazily yields the reference photo for providers that must re-detect an
	// expired reference identifier; it may be nil.
	Compare(ctx context.Context, query, reference domain.FaceID, referenceImage ImageFunc) (float64, error)
}

// ImageFunc yields image bytes on demand.
type ImageFunc func(ctx context.Context) ([]byte, error)

// Releaser is implemented by providers whose identifiers occupy storage on
// the provider side until explicitly deleted.
type Releaser interface {
	Release(ctx context.Context, id domain.FaceID) error
}

// Refresher is implemented by providers that re-detect stale reference
// identifiers during Compare. Refreshed reports the identifier that now
// stands in for reference, if any.
type Refresher interface {
	Refreshed(reference domain.FaceID) (domain.FaceID, bool)
}

type unwrapper interface {
	Unwrap() FaceProvider
}

// As finds the first provider in the Unwrap chain of p implementing T.
func As[T any](p FaceProvider) (T, bool) {
	for p != nil {
		if t, ok := any(p).(T); ok {
			return t, true
		}
		u, ok := p.(unwrapper)
		if !ok {
			break
		}
		p = u.Unwrap()
	}
	var zero T
	return zero, false
}

// CheckOwnership rejects identifiers not issued by p.
func CheckOwnership(p domain.ProviderType, ids ...domain.FaceID) error {
	for _, id := range ids {
		if id.Provider != p {
			return domain.ErrProviderMismatch.WithError(
				fmt.Errorf("face id issued by %q, provider is %q", id.Provider, p))
		}
		if id.Value == "" {
			return domain.ErrProviderMismatch.WithError(fmt.Errorf("empty face id"))
		}
	}
	return nil
}

// Clamp limits a similarity score to [0,1].
func Clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
