package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"agency-platform/internal/rbac"
	apperrors "agency-platform/pkg/errors"
)

// SessionClaims is the payload of access and refresh tokens.
type SessionClaims struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	AgencyID    string    `json:"agencyId,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	Type        TokenKind `json:"type"`
	jwt.RegisteredClaims
}

// TokenConfig is built once from the process configuration.
type TokenConfig struct {
	Secret           string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	PasswordResetTTL time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// TokenPair is returned at login.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"expiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// TokenService issues and verifies HS256 tokens. Every token is bound to the
// "platform" issuer and to an audience: session tokens to "users", reset
// tokens to "password-reset".
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, apperrors.Config(msgSecretRequired)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.PasswordResetTTL <= 0 {
		return nil, apperrors.Config(msgNonPositiveLifetime)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TokenService{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		resetTTL:   cfg.PasswordResetTTL,
		now:        now,
		parser:     jwt.NewParser(),
	}, nil
}

// IssueAccess signs an access token carrying p's permissions.
func (s *TokenService) IssueAccess(p *rbac.Principal) (string, time.Time, error) {
	return s.issueSession(p, KindAccess, s.accessTTL)
}

// IssueRefresh signs a refresh token. It never carries permissions; a refresh
// can only mint a new access token from the current stored principal.
func (s *TokenService) IssueRefresh(p *rbac.Principal) (string, time.Time, error) {
	return s.issueSession(p, KindRefresh, s.refreshTTL)
}

func (s *TokenService) IssueTokenPair(p *rbac.Principal) (TokenPair, error) {
	access, accessExp, err := s.IssueAccess(p)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.IssueRefresh(p)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *TokenService) issueSession(p *rbac.Principal, kind TokenKind, ttl time.Duration) (string, time.Time, error) {
	if p == nil || p.ID == uuid.Nil || !p.Role.Valid() {
		return "", time.Time{}, apperrors.BadRequest(msgPrincipalRequired)
	}

	now := s.now()
	expiresAt := now.Add(ttl)

	claims := SessionClaims{
		UserID:           p.ID.String(),
		Email:            p.Email,
		Role:             string(p.Role),
		Type:             kind,
		RegisteredClaims: s.registered(p.ID, AudienceSession, now, expiresAt),
	}
	if p.HasTenant() {
		claims.AgencyID = p.TenantID.String()
	}
	if kind == KindAccess {
		claims.Permissions = p.Permissions.Strings()
	}

	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *TokenService) registered(subject uuid.UUID, audience string, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject.String(),
		Issuer:    Issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (s *TokenService) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf(errSignTokenFmt, err)
	}
	return signed, nil
}

// Verify checks expiry, signature, issuer and audience, and rebuilds the
// principal. Expiry is evaluated first, so an expired token reports
// ErrTokenExpired whatever else is wrong with it.
func (s *TokenService) Verify(tokenString, audience string) (*rbac.Principal, *SessionClaims, error) {
	claims := &SessionClaims{}
	if err := s.parse(tokenString, audience, claims); err != nil {
		return nil, nil, err
	}

	p, err := claims.principal()
	if err != nil {
		return nil, nil, err
	}
	return p, claims, nil
}

// VerifyAccess verifies a session token and requires it to be an access token.
func (s *TokenService) VerifyAccess(tokenString string) (*rbac.Principal, *SessionClaims, error) {
	return s.verifyKind(tokenString, KindAccess)
}

// VerifyRefresh verifies a session token and requires it to be a refresh token.
func (s *TokenService) VerifyRefresh(tokenString string) (*rbac.Principal, *SessionClaims, error) {
	return s.verifyKind(tokenString, KindRefresh)
}

func (s *TokenService) verifyKind(tokenString string, kind TokenKind) (*rbac.Principal, *SessionClaims, error) {
	p, claims, err := s.Verify(tokenString, AudienceSession)
	if err != nil {
		return nil, nil, err
	}
	if claims.Type != kind {
		return nil, nil, apperrors.Token(msgWrongTokenKind, apperrors.ErrWrongTokenKind)
	}
	return p, claims, nil
}

// Decode reads session claims without verifying anything. The result is for
// logging only and must never be used to authorize.
func (s *TokenService) Decode(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if _, _, err := s.parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, apperrors.Token(msgTokenMalformed, apperrors.ErrTokenInvalid)
	}
	return claims, nil
}

func (s *TokenService) parse(tokenString, audience string, claims jwt.Claims) error {
	var unverified jwt.RegisteredClaims
	if _, _, err := s.parser.ParseUnverified(tokenString, &unverified); err != nil {
		return apperrors.Token(msgTokenMalformed, apperrors.ErrTokenInvalid)
	}
	if unverified.ExpiresAt != nil && !s.now().Before(unverified.ExpiresAt.Time) {
		return apperrors.Token(msgTokenExpired, apperrors.ErrTokenExpired)
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Token(msgTokenExpired, apperrors.ErrTokenExpired)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperrors.Token(msgTokenInvalid, apperrors.ErrTokenInvalid)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return apperrors.Token(msgAudienceMismatch, apperrors.ErrAudienceMismatch)
	default:
		return apperrors.Token(msgTokenInvalid, apperrors.ErrTokenInvalid)
	}
}

func (s *TokenService) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf(msgUnexpectedSigningMethod, token.Header["alg"])
	}
	return s.secret, nil
}

func (c *SessionClaims) principal() (*rbac.Principal, error) {
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return nil, apperrors.Token(msgInvalidSubject, apperrors.ErrTokenInvalid)
	}

	role, err := rbac.ParseRole(c.Role)
	if err != nil {
		return nil, apperrors.Token(msgInvalidRole, apperrors.ErrTokenInvalid)
	}

	var tenantID uuid.UUID
	if c.AgencyID != "" {
		if tenantID, err = uuid.Parse(c.AgencyID); err != nil {
			return nil, apperrors.Token(msgInvalidTenant, apperrors.ErrTokenInvalid)
		}
	}

	return &rbac.Principal{
		ID:          id,
		Email:       c.Email,
		Role:        role,
		TenantID:    tenantID,
		Permissions: rbac.PermissionSetFromStrings(c.Permissions),
	}, nil
}

// ExtractBearerToken returns the token from an Authorization header value.
// Anything other than exactly "Bearer <token>" yields "".
func ExtractBearerToken(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) != authHeaderParts || parts[0] != bearerScheme || parts[1] == "" {
		return ""
	}
	return parts[1]
}
