package domain

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so a sentinel still
// matches after WithError produced a copy.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Invalid or missing API key",
		StatusCode: 401,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Credential does not grant this operation",
		StatusCode: 403,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	ErrInvalidThreshold = &AppError{
		Code:       "INVALID_THRESHOLD",
		Message:    "Threshold must be between 0 and 1",
		StatusCode: 422,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, try again later",
		StatusCode: 429,
	}

	// Provider selection
	ErrNoActiveProvider = &AppError{
		Code:       "NO_ACTIVE_PROVIDER",
		Message:    "face matching unavailable",
		StatusCode: 503,
	}

	ErrProviderConfigInvalid = &AppError{
		Code:       "PROVIDER_CONFIG_INVALID",
		Message:    "Face provider configuration is invalid",
		StatusCode: 500,
	}

	ErrProviderUnavailable = &AppError{
		Code:       "PROVIDER_UNAVAILABLE",
		Message:    "Face provider is unavailable",
		StatusCode: 502,
	}

	ErrFeatureRequiresApproval = &AppError{
		Code:       "FEATURE_REQUIRES_APPROVAL",
		Message:    "Face provider account is not approved for face identification",
		StatusCode: 403,
	}

	ErrIdentifierExpired = &AppError{
		Code:       "IDENTIFIER_EXPIRED",
		Message:    "Face identifier is no longer known to the provider",
		StatusCode: 409,
	}

	ErrProviderMismatch = &AppError{
		Code:       "PROVIDER_MISMATCH",
		Message:    "Face identifier belongs to a different provider",
		StatusCode: 500,
	}

	// Image input
	ErrImageFetch = &AppError{
		Code:       "IMAGE_FETCH_FAILED",
		Message:    "Could not fetch image",
		StatusCode: 422,
	}

	ErrImageSourceForbidden = &AppError{
		Code:       "IMAGE_SOURCE_FORBIDDEN",
		Message:    "Image source is not allowed",
		StatusCode: 403,
	}

	ErrImageDecode = &AppError{
		Code:       "IMAGE_DECODE_FAILED",
		Message:    "Invalid image encoding",
		StatusCode: 422,
	}

	ErrImageTooLarge = &AppError{
		Code:       "IMAGE_TOO_LARGE",
		Message:    "Image exceeds the maximum allowed size",
		StatusCode: 413,
	}

	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "could not detect a face in your photo",
		StatusCode: 422,
	}

	// Storage
	ErrReferenceNotFound = &AppError{
		Code:       "REFERENCE_NOT_FOUND",
		Message:    "Reference not found",
		StatusCode: 404,
	}

	ErrEmbeddingNotFound = &AppError{
		Code:       "EMBEDDING_NOT_FOUND",
		Message:    "Face embedding not found",
		StatusCode: 404,
	}
)
