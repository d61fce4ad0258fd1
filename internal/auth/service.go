package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"interchee.org/internal/ids"
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	// refreshTokenBytes sets refresh-token entropy: 32 random bytes, well
	// past the 128-bit floor.
	refreshTokenBytes = 32

	// createRetries bounds regeneration attempts after a token-hash
	// collision trips the uniqueness constraint.
	createRetries = 3
)

// Service is the token issuer: it authenticates credentials, mints access
// and refresh tokens, and enforces the single-active-session policy.
type Service struct {
	users       UserStore
	credentials CredentialStore

	signingKey []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithAccessTTL configures access-token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh-credential lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) error {
		if cost > 0 {
			s.bcryptCost = cost
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the token issuer. Issuer, audience and signing key
// are mandatory; there are no baked-in defaults for them.
func NewService(users UserStore, credentials CredentialStore, issuer, audience string, signingKey []byte, opts ...ServiceOption) (*Service, error) {
	if users == nil || credentials == nil {
		return nil, errors.New("auth: user and credential stores are required")
	}
	issuer = strings.TrimSpace(issuer)
	audience = strings.TrimSpace(audience)
	if issuer == "" || audience == "" {
		return nil, errors.New("auth: issuer and audience are required")
	}
	if len(signingKey) < 32 {
		return nil, errors.New("auth: signing key must be at least 32 bytes")
	}
	svc := &Service{
		users:       users,
		credentials: credentials,
		signingKey:  signingKey,
		issuer:      issuer,
		audience:    audience,
		accessTTL:   defaultAccessTTL,
		refreshTTL:  defaultRefreshTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Authenticate resolves email+password to a user. Unknown email, wrong
// password and inactive account all return ErrInvalidCredentials with the
// same shape and comparable timing.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		burnPasswordCheck(password)
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			burnPasswordCheck(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	// Inactive accounts are rejected after the password check so the two
	// failures stay timing-uniform, and with the same error externally.
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login issues a fresh token pair for an authenticated user. Every
// previously issued, still-valid refresh credential is revoked first:
// one account, one live session.
func (s *Service) Login(ctx context.Context, user *User, clientIP string) (TokenPair, error) {
	if user == nil || user.ID == "" {
		return TokenPair{}, ErrInvalidCredentials
	}
	if _, err := s.credentials.RevokeAllActiveForUser(ctx, user.ID); err != nil {
		return TokenPair{}, fmt.Errorf("revoke prior sessions: %w", err)
	}
	return s.mintPair(ctx, user, clientIP)
}

// Rotate exchanges a valid refresh token for a new pair and invalidates the
// old token. Rotation is use-once: the consume step is a compare-and-swap,
// so of two concurrent rotations on the same token exactly one wins and the
// other fails closed with ErrTokenInvalid.
func (s *Service) Rotate(ctx context.Context, refreshToken, clientIP string) (TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, ErrTokenInvalid
	}
	cred, err := s.credentials.GetValid(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrTokenInvalid
		}
		return TokenPair{}, err
	}
	user, err := s.users.Find(ctx, cred.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrTokenInvalid
		}
		return TokenPair{}, err
	}
	// Active status is re-checked at every refresh boundary, not only login.
	if !user.IsActive {
		return TokenPair{}, ErrTokenInvalid
	}
	if err := s.credentials.Consume(ctx, refreshToken); err != nil {
		if errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrTokenInvalid
		}
		return TokenPair{}, err
	}
	return s.mintPair(ctx, user, clientIP)
}

// Logout revokes one refresh credential. Idempotent and non-leaking: an
// unknown or already-revoked token is indistinguishable from success.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	return s.credentials.Revoke(ctx, refreshToken)
}

// LogoutAll revokes every active refresh credential for the user and
// returns how many were revoked.
func (s *Service) LogoutAll(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.credentials.RevokeAllActiveForUser(ctx, userID)
}

// ChangePassword verifies the current password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	next = strings.TrimSpace(next)
	if len(next) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := HashPassword(next, s.bcryptCost)
	if err != nil {
		return err
	}
	return s.users.SetPassword(ctx, userID, hash)
}

// IssueAccessToken mints a signed access token for the user, embedding the
// global roles held right now. The result is a point-in-time snapshot.
func (s *Service) IssueAccessToken(ctx context.Context, user *User) (string, time.Time, error) {
	roles, err := s.users.GlobalRoles(ctx, user.ID)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.signAccessToken(user, roles, s.now().UTC())
}

func (s *Service) mintPair(ctx context.Context, user *User, clientIP string) (TokenPair, error) {
	now := s.now().UTC()
	roles, err := s.users.GlobalRoles(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	access, accessExp, err := s.signAccessToken(user, roles, now)
	if err != nil {
		return TokenPair{}, err
	}

	var refresh string
	var refreshExp time.Time
	for attempt := 0; ; attempt++ {
		token, cred, err := s.newRefreshCredential(user.ID, clientIP, now)
		if err != nil {
			return TokenPair{}, err
		}
		err = s.credentials.Create(ctx, cred)
		if err == nil {
			refresh, refreshExp = token, cred.ExpiresAt
			break
		}
		// A hash collision trips the uniqueness constraint; regenerate.
		if errors.Is(err, ErrConflict) && attempt < createRetries {
			continue
		}
		return TokenPair{}, fmt.Errorf("persist refresh credential: %w", err)
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) newRefreshCredential(userID, clientIP string, now time.Time) (string, *RefreshCredential, error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	cred := &RefreshCredential{
		ID:          ids.New(),
		UserID:      userID,
		TokenHash:   HashRefreshToken(token),
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.refreshTTL),
		CreatedByIP: clientIP,
	}
	return token, cred, nil
}

// HashRefreshToken maps an opaque refresh token to its storage hash. Lookups
// and revocations address records exclusively through this digest, so a
// database leak exposes no usable tokens.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
