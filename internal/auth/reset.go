package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "agency-platform/pkg/errors"
)

// PasswordResetClaims is the payload of a password-reset token. It shares the
// signing key with session tokens but not the audience, so neither kind is
// accepted where the other is expected.
type PasswordResetClaims struct {
	UserID string    `json:"userId"`
	Email  string    `json:"email"`
	Type   TokenKind `json:"type"`
	jwt.RegisteredClaims
}

// ResetIdentity is what a verified reset token proves.
type ResetIdentity struct {
	UserID    uuid.UUID
	Email     string
	TokenID   string
	ExpiresAt time.Time
}

func (s *TokenService) IssuePasswordReset(userID uuid.UUID, email string) (string, time.Time, error) {
	if userID == uuid.Nil {
		return "", time.Time{}, apperrors.BadRequest(msgPrincipalRequired)
	}

	now := s.now()
	expiresAt := now.Add(s.resetTTL)
	claims := PasswordResetClaims{
		UserID:           userID.String(),
		Email:            email,
		Type:             KindPasswordReset,
		RegisteredClaims: s.registered(userID, AudiencePasswordReset, now, expiresAt),
	}

	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *TokenService) VerifyPasswordReset(tokenString string) (*ResetIdentity, error) {
	claims := &PasswordResetClaims{}
	if err := s.parse(tokenString, AudiencePasswordReset, claims); err != nil {
		return nil, err
	}
	if claims.Type != KindPasswordReset {
		return nil, apperrors.Token(msgWrongTokenKind, apperrors.ErrWrongTokenKind)
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, apperrors.Token(msgInvalidSubject, apperrors.ErrTokenInvalid)
	}

	return &ResetIdentity{
		UserID:    id,
		Email:     claims.Email,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// RedeemPasswordReset verifies a reset token and marks it used. A token can
// be redeemed once; later attempts fail with ErrTokenInvalid until it expires.
func (s *TokenService) RedeemPasswordReset(ctx context.Context, tokenString string, guard ReplayGuard) (*ResetIdentity, error) {
	identity, err := s.VerifyPasswordReset(tokenString)
	if err != nil {
		return nil, err
	}
	if identity.TokenID == "" {
		return nil, apperrors.Token(msgTokenInvalid, apperrors.ErrTokenInvalid)
	}
	if err := guard.Consume(ctx, HashTokenID(identity.TokenID), identity.ExpiresAt); err != nil {
		return nil, err
	}
	return identity, nil
}

// ReleasePasswordReset makes a redeemed token usable again. Callers use it
// when the password write that followed RedeemPasswordReset failed.
func (s *TokenService) ReleasePasswordReset(ctx context.Context, identity *ResetIdentity, guard ReplayGuard) error {
	return guard.Release(ctx, HashTokenID(identity.TokenID))
}
