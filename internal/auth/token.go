package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// clockSkewLeeway tolerates small clock drift between instances when
// validating exp/nbf. Seconds, deliberately not minutes.
const clockSkewLeeway = 10 * time.Second

// Claims is the access-token claim set. Roles is the global-role snapshot at
// issuance time.
type Claims struct {
	Email    string   `json:"email"`
	UserName string   `json:"name"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// signAccessToken mints an HS256 JWT for the user with the issuer, audience
// and TTL configured on the service.
func (s *Service) signAccessToken(user *User, roles []string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.accessTTL)
	claims := Claims{
		Email:    user.Email,
		UserName: user.UserName,
		Roles:    dedupeRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken validates signature, issuer, audience and time claims and
// returns the embedded principal. Every failure collapses to ErrTokenInvalid.
func (s *Service) VerifyAccessToken(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkewLeeway),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil {
		return Principal{}, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Principal{}, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Principal{}, ErrTokenInvalid
	}
	return Principal{
		UserID:   claims.Subject,
		Email:    claims.Email,
		UserName: claims.UserName,
		Roles:    dedupeRoles(claims.Roles),
	}, nil
}

func dedupeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var out []string
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		key := strings.ToLower(r)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
