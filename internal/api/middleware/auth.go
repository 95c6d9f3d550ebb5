package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facematch/internal/admin"
	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

const (
	// HeaderAPIKey is accepted as an alternative to a Bearer token
	HeaderAPIKey = "X-API-Key"
	// QueryAccessToken carries an operator token for websocket upgrades,
	// which cannot set headers from a browser.
	QueryAccessToken = "access_token"
	// LocalOperator holds the operator name of an authenticated token
	LocalOperator = "operator"
	// LocalTrusted is true when the caller presented admin credentials
	LocalTrusted = "trusted"
)

// Admin accepts either the static admin key or an operator token carrying
// admin.ScopeAdmin. Query tokens are only honoured as operator tokens. An
// empty key with tokens disabled rejects every request.
func Admin(expected string, tokens *admin.TokenService) fiber.Handler {
	expectedHash := hashAPIKey(expected)

	return func(c *fiber.Ctx) error {
		credential := headerCredential(c)
		if keyMatches(expected, expectedHash, credential) {
			c.Locals(LocalTrusted, true)
			return c.Next()
		}

		if !tokens.Enabled() {
			return domain.ErrUnauthorized
		}
		if credential == "" {
			credential = strings.TrimSpace(c.Query(QueryAccessToken))
		}
		if credential == "" {
			return domain.ErrUnauthorized
		}

		claims, err := tokens.Authorize(credential, admin.ScopeAdmin)
		if err != nil {
			return domain.ErrUnauthorized.WithError(err)
		}
		c.Locals(LocalOperator, claims.Operator)
		c.Locals(LocalTrusted, true)
		return c.Next()
	}
}

// Client guards the face routes. It accepts the client key, the admin key,
// or an operator token scoped to admin.ScopeClient or admin.ScopeAdmin. Only
// admin credentials mark the request trusted. With nothing configured every
// request is rejected.
func Client(clientKey, adminKey string, tokens *admin.TokenService) fiber.Handler {
	clientHash := hashAPIKey(clientKey)
	adminHash := hashAPIKey(adminKey)

	return func(c *fiber.Ctx) error {
		credential := headerCredential(c)
		if credential == "" {
			return domain.ErrUnauthorized
		}
		if keyMatches(adminKey, adminHash, credential) {
			c.Locals(LocalTrusted, true)
			return c.Next()
		}
		if keyMatches(clientKey, clientHash, credential) {
			return c.Next()
		}

		if !tokens.Enabled() {
			return domain.ErrUnauthorized
		}
		claims, err := tokens.Validate(credential)
		if err != nil {
			return domain.ErrUnauthorized.WithError(err)
		}
		switch claims.Scope {
		case admin.ScopeAdmin:
			c.Locals(LocalTrusted, true)
		case admin.ScopeClient:
		default:
			return domain.ErrUnauthorized
		}
		c.Locals(LocalOperator, claims.Operator)
		return c.Next()
	}
}

// Trusted reports whether the request was authenticated with admin
// credentials.
func Trusted(c *fiber.Ctx) bool {
	trusted, _ := c.Locals(LocalTrusted).(bool)
	return trusted
}

func headerCredential(c *fiber.Ctx) string {
	if credential := extractBearerToken(c); credential != "" {
		return credential
	}
	return strings.TrimSpace(c.Get(HeaderAPIKey))
}

func keyMatches(configured string, configuredHash [sha256.Size]byte, presented string) bool {
	if configured == "" || presented == "" {
		return false
	}
	hash := hashAPIKey(presented)
	return subtle.ConstantTimeCompare(hash[:], configuredHash[:]) == 1
}

// extractBearerToken extracts token from Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// hashAPIKey hashes keys so comparison time does not depend on key length
func hashAPIKey(apiKey string) [sha256.Size]byte {
	return sha256.Sum256([]byte(apiKey))
}
