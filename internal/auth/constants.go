package auth

// Token kinds carried in the "type" claim.
type TokenKind string

const (
	KindAccess        TokenKind = "access"
	KindRefresh       TokenKind = "refresh"
	KindPasswordReset TokenKind = "password_reset"
)

const (
	Issuer                = "platform"
	AudienceSession       = "users"
	AudiencePasswordReset = "password-reset"

	HeaderAuthorization = "Authorization"
	bearerScheme        = "Bearer"
	authHeaderParts     = 2
)

const (
	msgSecretRequired          = "token signing secret is required"
	msgNonPositiveLifetime     = "token lifetimes must be positive"
	msgUnexpectedSigningMethod = "unexpected signing method: %v"
	msgTokenMalformed          = "malformed token"
	msgTokenExpired            = "token has expired"
	msgTokenInvalid            = "invalid token"
	msgAudienceMismatch        = "token not valid for this audience"
	msgWrongTokenKind          = "wrong token type"
	msgInvalidSubject          = "invalid token subject"
	msgInvalidRole             = "invalid role claim"
	msgInvalidTenant           = "invalid agency claim"
	msgPrincipalRequired       = "principal with id and valid role is required"
	msgResetTokenUsed          = "password reset token has already been used"
	errSignTokenFmt            = "failed to sign token: %w"
)
