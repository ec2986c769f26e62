package auth

import (
	"crypto/rsa"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/retailcore/rebates-api/internal/xerrors"
)

// Claims is the token payload we care about. The identity provider nests
// client roles under resource_access keyed by audience.
type Claims struct {
	Name           string                    `json:"name"`
	Email          string                    `json:"email"`
	GivenName      string                    `json:"given_name"`
	FamilyName     string                    `json:"family_name"`
	ResourceAccess map[string]resourceAccess `json:"resource_access"`
	jwt.RegisteredClaims
}

type resourceAccess struct {
	Roles []string `json:"roles"`
}

// Roles returns the client roles granted for the given audience.
func (c Claims) Roles(audience string) []string {
	return c.ResourceAccess[audience].Roles
}

// Verifier checks RS256 bearer tokens against the configured public key and
// audience.
type Verifier struct {
	key      *rsa.PublicKey
	audience string
	parser   *jwt.Parser
}

// NewVerifier builds a Verifier from the public key as configured: either a
// full PEM block or just the base64 body without the PUBLIC KEY armor.
func NewVerifier(publicKey, audience string) (*Verifier, error) {
	pemText := strings.TrimSpace(publicKey)
	if !strings.HasPrefix(pemText, "-----BEGIN") {
		pemText = "-----BEGIN PUBLIC KEY-----\n" + pemText + "\n-----END PUBLIC KEY-----"
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemText))
	if err != nil {
		return nil, xerrors.Wrap(err, "parse identity provider public key")
	}
	return &Verifier{
		key:      key,
		audience: audience,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

func (v *Verifier) Audience() string { return v.audience }

// Verify parses and validates the raw token, returning its claims.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "verify token")
	}
	return claims, nil
}
