package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"agency-platform/internal/audit"
	"agency-platform/internal/auth"
	"agency-platform/internal/domain/user"
	"agency-platform/internal/metrics"
	"agency-platform/internal/notify"
	"agency-platform/internal/repository"
	apperrors "agency-platform/pkg/errors"
	"agency-platform/pkg/logger"
	"agency-platform/pkg/password"
	"agency-platform/pkg/validator"
)

type AuthHandler struct {
	users        UserStore
	tokens       *auth.TokenService
	hasher       *password.Hasher
	dummyHash    string
	replay       auth.ReplayGuard
	mailer       ResetMailer
	audit        *audit.Logger
	metrics      *metrics.Metrics
	storeTimeout time.Duration
}

type AuthHandlerConfig struct {
	Users   UserStore
	Tokens  *auth.TokenService
	Hasher  *password.Hasher
	Replay  auth.ReplayGuard
	Mailer  ResetMailer
	Audit   *audit.Logger
	Metrics *metrics.Metrics
	// StoreTimeout bounds each user store read attempt.
	StoreTimeout time.Duration
}

// NewAuthHandler hashes a dummy password at the configured cost, so it takes
// as long as one real login check.
func NewAuthHandler(cfg AuthHandlerConfig) (*AuthHandler, error) {
	dummyHash, err := auth.NewDummyPasswordHash(cfg.Hasher)
	if err != nil {
		return nil, err
	}
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	al := cfg.Audit
	if al == nil {
		al = audit.NewLogger(nil, nil)
	}
	return &AuthHandler{
		users:        cfg.Users,
		tokens:       cfg.Tokens,
		hasher:       cfg.Hasher,
		dummyHash:    dummyHash,
		replay:       cfg.Replay,
		mailer:       cfg.Mailer,
		audit:        al,
		metrics:      cfg.Metrics,
		storeTimeout: timeout,
	}, nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	auth.TokenPair
	User PrincipalView `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type PasswordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindStrictJSON(c, &req); err != nil {
		return err
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		h.hasher.Verify(req.Password, h.dummyHash)
		return h.loginFailed(c, reasonUnknownEmail)
	}

	u, err := h.findByEmail(c.Request().Context(), email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Same bcrypt work as a real mismatch so response time does not
			// reveal whether the email exists.
			h.hasher.Verify(req.Password, h.dummyHash)
			return h.loginFailed(c, reasonUnknownEmail)
		}
		return err
	}

	if !h.hasher.Verify(req.Password, u.PasswordHash) {
		return h.loginFailed(c, reasonBadPassword)
	}
	if !u.Active {
		return h.loginFailed(c, reasonInactiveAccount)
	}
	h.upgradeHash(c, u, req.Password)

	pair, err := h.tokens.IssueTokenPair(u.Principal())
	if err != nil {
		return apperrors.InternalServer(msgIssueTokenFailed, err)
	}

	h.metrics.RecordAuth(authOpLogin, authResultSuccess)
	logger.FromEcho(c).Info("login succeeded",
		zap.String("user_id", u.ID.String()),
		zap.String("role", string(u.Role)),
	)
	return respondData(c, http.StatusOK, LoginResponse{TokenPair: pair, User: newUserView(u)})
}

// upgradeHash re-hashes a verified password stored under a lower bcrypt cost
// than configured. Failures are logged; the login still succeeds.
func (h *AuthHandler) upgradeHash(c echo.Context, u *user.User, plain string) {
	needs, err := h.hasher.NeedsRehash(u.PasswordHash)
	if err != nil || !needs {
		return
	}
	log := logger.FromEcho(c)
	hash, err := h.hasher.Hash(plain)
	if err != nil {
		log.Warn("failed to upgrade password hash", zap.String("user_id", u.ID.String()), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.storeTimeout)
	defer cancel()
	if err := h.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		log.Warn("failed to upgrade password hash", zap.String("user_id", u.ID.String()), zap.Error(err))
		return
	}
	log.Info("password hash upgraded", zap.String("user_id", u.ID.String()))
}

func (h *AuthHandler) loginFailed(c echo.Context, reason string) error {
	e := audit.FromEcho(c, audit.KindLoginFailed, audit.OutcomeFailure)
	e.Reason = reason
	h.audit.Record(e)
	h.metrics.RecordAuth(authOpLogin, authResultFailure)
	return apperrors.InvalidCredentials()
}

// Refresh issues a new access token. Role, agency and permissions are taken
// from the stored account, not from the refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := bindStrictJSON(c, &req); err != nil {
		return err
	}

	p, _, err := h.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		h.metrics.RecordAuth(authOpRefresh, authResultFailure)
		return err
	}

	u, err := h.findByID(c.Request().Context(), p.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.metrics.RecordAuth(authOpRefresh, authResultFailure)
			return apperrors.Unauthenticated(msgSessionInvalid)
		}
		return err
	}
	if !u.Active || u.Role != p.Role || u.TenantID != p.TenantID {
		h.metrics.RecordAuth(authOpRefresh, authResultFailure)
		return apperrors.Unauthenticated(msgSessionInvalid)
	}

	token, expiresAt, err := h.tokens.IssueAccess(u.Principal())
	if err != nil {
		return apperrors.InternalServer(msgIssueTokenFailed, err)
	}

	h.metrics.RecordAuth(authOpRefresh, authResultSuccess)
	return respondData(c, http.StatusOK, RefreshResponse{AccessToken: token, ExpiresAt: expiresAt})
}

// RequestPasswordReset always answers 202 so the response never tells
// whether the email belongs to an account.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req PasswordResetRequest
	if err := bindStrictJSON(c, &req); err != nil {
		return err
	}

	log := logger.FromEcho(c)
	ctx := c.Request().Context()

	u, err := h.findByEmail(ctx, normalizeEmail(req.Email))
	switch {
	case err == nil && u.Active:
		if err := h.sendReset(ctx, c, u); err != nil {
			log.Error("password reset delivery failed", zap.String("user_id", u.ID.String()), zap.Error(err))
		}
	case err == nil, errors.Is(err, apperrors.ErrNotFound):
	default:
		log.Error("password reset lookup failed", zap.Error(err))
	}

	h.metrics.RecordAuth(authOpResetRequest, authResultSuccess)
	return respondMessage(c, http.StatusAccepted, msgResetRequested)
}

func (h *AuthHandler) sendReset(ctx context.Context, c echo.Context, u *user.User) error {
	token, expiresAt, err := h.tokens.IssuePasswordReset(u.ID, u.Email)
	if err != nil {
		return err
	}
	if err := h.mailer.SendPasswordReset(ctx, notify.PasswordReset{
		To:        u.Email,
		Token:     token,
		ExpiresIn: time.Until(expiresAt),
	}); err != nil {
		return err
	}

	e := audit.FromEcho(c, audit.KindPasswordReset, audit.OutcomeSuccess).WithActor(u.ID, string(u.Role))
	e.Reason = reasonResetIssued
	h.audit.Record(e)
	return nil
}

// ConfirmPasswordReset sets a new password. The password is validated before
// the token is redeemed so a rejected password does not use up the token.
func (h *AuthHandler) ConfirmPasswordReset(c echo.Context) error {
	var req PasswordResetConfirmRequest
	if err := bindStrictJSON(c, &req); err != nil {
		return err
	}

	if err := validator.Password(req.Password); err != nil {
		return apperrors.Validation(err.Error())
	}

	ctx := c.Request().Context()
	identity, err := h.tokens.RedeemPasswordReset(ctx, strings.TrimSpace(req.Token), h.replay)
	if err != nil {
		h.metrics.RecordAuth(authOpResetConfirm, authResultFailure)
		return err
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.releaseReset(c, identity)
		return apperrors.InternalServer(msgPasswordProcessFail, err)
	}

	err = h.users.UpdatePassword(ctx, identity.UserID, hash)
	if errors.Is(err, apperrors.ErrNotFound) {
		h.metrics.RecordAuth(authOpResetConfirm, authResultFailure)
		return apperrors.Unauthenticated(msgSessionInvalid)
	}
	if err != nil {
		h.releaseReset(c, identity)
		return apperrors.ServiceUnavailable(msgStoreUnavailable, err)
	}

	e := audit.FromEcho(c, audit.KindPasswordReset, audit.OutcomeSuccess).WithActor(identity.UserID, "")
	e.Reason = reasonResetRedeemed
	h.audit.Record(e)
	h.metrics.RecordAuth(authOpResetConfirm, authResultSuccess)
	return respondMessage(c, http.StatusOK, msgPasswordUpdated)
}

// releaseReset hands the token back after a failed write so the link in the
// user's mailbox still works.
func (h *AuthHandler) releaseReset(c echo.Context, identity *auth.ResetIdentity) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), h.storeTimeout)
	defer cancel()
	if err := h.tokens.ReleasePasswordReset(ctx, identity, h.replay); err != nil {
		logger.FromEcho(c).Error("failed to release password reset token",
			zap.String("user_id", identity.UserID.String()),
			zap.Error(err),
		)
	}
}

func (h *AuthHandler) findByEmail(ctx context.Context, email string) (*user.User, error) {
	if email == "" {
		return nil, apperrors.NotFound("user not found")
	}
	done := h.metrics.TrackStoreRead("user_by_email")
	defer done()
	return repository.Read(ctx, h.storeTimeout, func(ctx context.Context) (*user.User, error) {
		return h.users.FindByEmail(ctx, email)
	})
}

func (h *AuthHandler) findByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	done := h.metrics.TrackStoreRead("principal")
	defer done()
	return repository.Read(ctx, h.storeTimeout, func(ctx context.Context) (*user.User, error) {
		return h.users.FindByID(ctx, id)
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
