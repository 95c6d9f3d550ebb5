package azure

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

var ErrInvalidResponse = errors.New("invalid response from azure face api")

// APIError is the error envelope returned by the Face API.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("azure face api status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}

const (
	codeFaceNotFound       = "FaceNotFound"
	codeUnsupportedFeature = "UnsupportedFeature"
	codeInvalidImage       = "InvalidImage"
	codeInvalidImageSize   = "InvalidImageSize"
	codeInvalidURL         = "InvalidURL"
)

func isFaceNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound && apiErr.Code == codeFaceNotFound
}

// requiresApproval reports whether a 403 means the subscription lacks
// Limited Access approval for identification features.
func requiresApproval(e *APIError) bool {
	if e.Code == codeUnsupportedFeature {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "limited access") || strings.Contains(msg, "approved") || strings.Contains(msg, "approval")
}

// mapError translates Face API failures into the domain taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return domain.ErrProviderUnavailable.WithError(err)
	}

	switch {
	case apiErr.StatusCode == http.StatusUnauthorized:
		return domain.ErrProviderConfigInvalid.WithError(err)
	case apiErr.StatusCode == http.StatusForbidden && requiresApproval(apiErr):
		return domain.ErrFeatureRequiresApproval.WithError(err)
	case apiErr.StatusCode == http.StatusNotFound && apiErr.Code == codeFaceNotFound:
		return domain.ErrIdentifierExpired.WithError(err)
	case apiErr.Code == codeInvalidImageSize:
		return domain.ErrImageTooLarge.WithError(err)
	case apiErr.Code == codeInvalidImage || apiErr.Code == codeInvalidURL:
		return domain.ErrImageDecode.WithError(err)
	case apiErr.StatusCode == http.StatusBadRequest:
		return domain.ErrProviderConfigInvalid.WithError(err)
	default:
		return domain.ErrProviderUnavailable.WithError(err)
	}
}
