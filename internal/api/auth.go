package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/exam/internal/errors"
)

const userKey = "api.user"

// Verifier checks HS256 bearer tokens issued elsewhere. The subject claim is the user id.
type Verifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

func NewVerifier(secret, issuer string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}
}

// Verify returns the subject of a valid token.
func (v *Verifier) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid token"), errors.WithCause(err))
	}

	if claims.Subject == "" {
		return "", errors.New(errors.CodeUnauthenticated, errors.WithMessagef("token has no subject"))
	}

	return claims.Subject, nil
}

// Sign issues a token for the user. Used by tooling and tests, the service itself only verifies.
func (v *Verifier) Sign(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (a *API) authenticate(c *gin.Context) {
	h := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		a.fail(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("bearer token required")))
		return
	}

	user, err := a.verifier.Verify(token)
	if err != nil {
		a.fail(c, err)
		return
	}

	c.Set(userKey, user)
	c.Next()
}

func userID(c *gin.Context) string {
	return c.GetString(userKey)
}
