package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "certportal/pkg/domain"
)

// Claims is the JWT payload issued by the identity provider. Role and
// organization membership are trusted as ground truth; the corporate IdP owns
// the account lifecycle.
type Claims struct {
	DisplayName    string `json:"name"`
	Role           string `json:"role"`
	OrganizationID string `json:"org_id,omitempty"`
	Blocked        bool   `json:"blocked,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens and maps them to principals.
type Verifier struct {
	signingKey []byte
}

// NewVerifier creates a token verifier with the shared HMAC signing key.
func NewVerifier(signingKey string) *Verifier {
	return &Verifier{signingKey: []byte(signingKey)}
}

// Verify parses and validates a bearer token, returning the embedded principal.
func (v *Verifier) Verify(tokenString string) (Principal, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Principal{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return Principal{}, fmt.Errorf("token is not valid")
	}

	principalID, err := id.ParsePrincipalID(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("parse subject: %w", err)
	}

	p := Principal{
		ID:            principalID,
		DisplayName:   claims.DisplayName,
		Role:          Role(claims.Role),
		AccountStatus: AccountActive,
	}
	if claims.Blocked {
		p.AccountStatus = AccountBlocked
	}
	if claims.OrganizationID != "" {
		orgID, err := id.ParseOrganizationID(claims.OrganizationID)
		if err != nil {
			return Principal{}, fmt.Errorf("parse org claim: %w", err)
		}
		p.OrganizationID = orgID
	}
	return p, nil
}

// Issue signs a token for the given principal. Used by the dev identity
// provider and test fixtures; production tokens come from the real IdP.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		DisplayName: p.DisplayName,
		Role:        string(p.Role),
		Blocked:     p.AccountStatus == AccountBlocked,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if !p.OrganizationID.IsNil() {
		claims.OrganizationID = p.OrganizationID.String()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.signingKey)
}
