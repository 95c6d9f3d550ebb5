package rekognition

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

var (
	// ErrCollectionAlreadyExists indicates that a collection with the same name already exists
	ErrCollectionAlreadyExists = errors.New("rekognition collection already exists")

	// ErrMultipleFaces indicates that multiple faces were detected when only one was expected
	ErrMultipleFaces = errors.New("multiple faces detected in image")
)

const (
	errCodeAccessDenied       = "AccessDeniedException"
	errCodeResourceNotFound   = "ResourceNotFoundException"
	errCodeResourceExists     = "ResourceAlreadyExistsException"
	errCodeInvalidParameter   = "InvalidParameterException"
	errCodeInvalidImageFormat = "InvalidImageFormatException"
	errCodeImageTooLarge      = "ImageTooLargeException"
	errCodeUnrecognizedClient = "UnrecognizedClientException"
	errCodeInvalidSignature   = "InvalidSignatureException"
	errCodeExpiredToken       = "ExpiredTokenException"
)

// operation distinguishes how an InvalidParameter error must be read.
type operation int

const (
	opIndex operation = iota
	opSearch
	opCollection
)

// mapError translates an AWS error into the domain taxonomy.
func mapError(op operation, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrProviderUnavailable.WithError(err)
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return domain.ErrProviderUnavailable.WithError(err)
	}

	switch apiErr.ErrorCode() {
	case errCodeAccessDenied:
		return domain.ErrFeatureRequiresApproval.WithError(err)
	case errCodeUnrecognizedClient, errCodeInvalidSignature, errCodeExpiredToken:
		return domain.ErrProviderConfigInvalid.WithError(err)
	case errCodeImageTooLarge:
		return domain.ErrImageTooLarge.WithError(err)
	case errCodeInvalidImageFormat:
		return domain.ErrImageDecode.WithError(err)
	case errCodeResourceNotFound:
		if op == opSearch {
			return domain.ErrIdentifierExpired.WithError(err)
		}
		return domain.ErrProviderUnavailable.WithError(err)
	case errCodeInvalidParameter:
		switch op {
		case opIndex:
			return ParseNoFaceError(err)
		case opSearch:
			if strings.Contains(strings.ToLower(apiErr.ErrorMessage()), "face") {
				return domain.ErrIdentifierExpired.WithError(err)
			}
			return domain.ErrProviderConfigInvalid.WithError(err)
		default:
			return domain.ErrProviderConfigInvalid.WithError(err)
		}
	default:
		return domain.ErrProviderUnavailable.WithError(err)
	}
}

// ParseNoFaceError checks if an AWS error indicates no face was detected
func ParseNoFaceError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == errCodeInvalidParameter {
		if msg := apiErr.ErrorMessage(); msg != "" {
			return domain.ErrNoFaceDetected.WithError(fmt.Errorf("%s", msg))
		}
		return domain.ErrNoFaceDetected
	}

	return err
}

// ParseIndexFacesError interprets errors from IndexFaces operation
func ParseIndexFacesError(unindexedFaces []types.UnindexedFace) error {
	if len(unindexedFaces) == 0 {
		return domain.ErrNoFaceDetected
	}

	// Check the first unindexed face for the reason
	face := unindexedFaces[0]
	if len(face.Reasons) > 0 {
		switch face.Reasons[0] {
		case types.ReasonExceedsMaxFaces:
			return domain.ErrNoFaceDetected.WithError(ErrMultipleFaces)
		case types.ReasonExtremePose, types.ReasonLowBrightness,
			types.ReasonLowSharpness, types.ReasonLowConfidence,
			types.ReasonSmallBoundingBox, types.ReasonLowFaceQuality:
			return domain.ErrNoFaceDetected.WithError(fmt.Errorf("unindexed: %s", face.Reasons[0]))
		}
	}

	return domain.ErrNoFaceDetected
}
