package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CustomClaims carries the HomeCare Hub claims issued by the identity
// provider in OIDC deployments.
type CustomClaims struct {
	Email         string `json:"https://homecarehub.io/email"`
	PlatformAdmin bool   `json:"https://homecarehub.io/platform_admin"`
}

func (c *CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// AuthorizationConfig configures OIDC token validation.
type AuthorizationConfig struct {
	Audience []string
	Issuer   string
}

// Middleware validates RS256 bearer tokens against the issuer's JWKS and
// exposes the subject and custom claims on the gin context. Used instead of
// the built-in HS256 token service when an external identity provider is
// configured.
func Middleware(log *zap.Logger, cfg AuthorizationConfig) gin.HandlerFunc {
	issuerURL, err := url.Parse(cfg.Issuer)
	if err != nil {
		panic(fmt.Sprintf("failed to parse issuer URL: %v", err))
	}

	jwksProvider := jwks.NewCachingProvider(issuerURL, time.Minute)
	customClaims := func() validator.CustomClaims {
		return &CustomClaims{}
	}

	jwtValidator, err := validator.New(
		jwksProvider.KeyFunc,
		validator.RS256,
		cfg.Issuer,
		cfg.Audience,
		validator.WithAllowedClockSkew(30*time.Second),
		validator.WithCustomClaims(customClaims),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to set up the validator: %v", err))
	}

	return func(c *gin.Context) {
		errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error("failed to validate OIDC token", zap.Error(err))
		}

		middleware := jwtmiddleware.New(
			jwtValidator.ValidateToken,
			jwtmiddleware.WithErrorHandler(errorHandler),
		)

		encounteredError := true
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			encounteredError = false
			claims, _ := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
			if claims != nil {
				c.Set("oidc_subject", claims.RegisteredClaims.Subject)
				if custom, ok := claims.CustomClaims.(*CustomClaims); ok {
					c.Set("oidc_email", custom.Email)
					c.Set("oidc_platform_admin", custom.PlatformAdmin)
				}
			}
			c.Request = r
			c.Next()
		}

		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)

		if encounteredError {
			c.AbortWithStatusJSON(
				http.StatusUnauthorized,
				gin.H{"message": "token is invalid"},
			)
		}
	}
}
