package google

import (
	"errors"
	"net/http"
	"strings"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

// mapError translates Cloud Vision failures into the domain taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return domain.ErrProviderUnavailable.WithError(err)
	}

	msg := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Status.Status == "PERMISSION_DENIED" || apiErr.HTTPStatus == http.StatusForbidden:
		// API disabled, billing off or key restricted to other APIs
		return domain.ErrFeatureRequiresApproval.WithError(err)
	case apiErr.Status.Status == "UNAUTHENTICATED" || strings.Contains(msg, "api key not valid"):
		return domain.ErrProviderConfigInvalid.WithError(err)
	case apiErr.Status.Status == "INVALID_ARGUMENT" && strings.Contains(msg, "image"):
		return domain.ErrImageDecode.WithError(err)
	case apiErr.Status.Status == "INVALID_ARGUMENT":
		return domain.ErrProviderConfigInvalid.WithError(err)
	default:
		return domain.ErrProviderUnavailable.WithError(err)
	}
}
