package middleware

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/dafibh/jokebox/jokebox-backend/internal/problem"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// EditorClaims are the custom claims read from the access token
type EditorClaims struct {
	Scope string `json:"scope"`
}

// Validate implements validator.CustomClaims
func (c *EditorClaims) Validate(ctx context.Context) error {
	return nil
}

// HasScope reports whether the space-separated scope claim grants scope
func (c *EditorClaims) HasScope(scope string) bool {
	for _, granted := range strings.Fields(c.Scope) {
		if granted == scope {
			return true
		}
	}
	return false
}

type contextKey string

// EditorKey holds the token subject of the caller on guarded routes
const EditorKey contextKey = "editor"

// TokenValidator validates a raw bearer token
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (interface{}, error)
}

// EditorAuth guards the joke write routes. Reads stay public.
type EditorAuth struct {
	validator     TokenValidator
	requiredScope string
}

// NewEditorAuth validates RS256 tokens issued by the Auth0 tenant at domain.
// When requiredScope is not empty tokens must also grant it.
func NewEditorAuth(domain, audience, requiredScope string) (*EditorAuth, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, err
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &EditorClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	return NewEditorAuthWithValidator(jwtValidator, requiredScope), nil
}

// NewEditorAuthWithValidator wires a custom validator
func NewEditorAuthWithValidator(v TokenValidator, requiredScope string) *EditorAuth {
	return &EditorAuth{validator: v, requiredScope: requiredScope}
}

// Require returns the middleware. A missing or invalid token answers 401,
// a valid token without the required scope answers 403.
func (a *EditorAuth) Require() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return problem.Unauthorized(c, "A bearer token is required to change jokes")
			}

			raw, err := a.validator.ValidateToken(c.Request().Context(), token)
			if err != nil {
				log.Debug().Err(err).Msg("Token validation failed")
				return problem.Unauthorized(c, "Invalid token")
			}
			claims, ok := raw.(*validator.ValidatedClaims)
			if !ok {
				return problem.Unauthorized(c, "Invalid token")
			}

			subject := claims.RegisteredClaims.Subject
			if a.requiredScope != "" {
				editor, _ := claims.CustomClaims.(*EditorClaims)
				if editor == nil || !editor.HasScope(a.requiredScope) {
					log.Warn().
						Str("subject", subject).
						Str("scope", a.requiredScope).
						Msg("Joke change rejected: missing scope")
					return problem.Forbidden(c, "Token lacks the "+a.requiredScope+" scope")
				}
			}

			ctx := context.WithValue(c.Request().Context(), EditorKey, subject)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// GetEditor returns the token subject that passed EditorAuth, or ""
func GetEditor(c echo.Context) string {
	if subject, ok := c.Request().Context().Value(EditorKey).(string); ok {
		return subject
	}
	return ""
}
