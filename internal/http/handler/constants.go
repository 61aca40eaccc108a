package handler

import "time"

const (
	jsonKeySuccess = "success"
	jsonKeyData    = "data"
	jsonKeyError   = "error"
	jsonKeyMessage = "message"

	paramClientID = "clientId"
	paramAgencyID = "agencyId"
	queryClientID = "clientId"

	defaultStoreTimeout = 2 * time.Second
)

const (
	msgContentTypeJSONRequired = "content type must be application/json"
	msgInvalidRequestBody      = "invalid request body"
	msgSessionInvalid          = "session is no longer valid"
	msgStoreUnavailable        = "service temporarily unavailable"
	msgIssueTokenFailed        = "failed to issue token"
	msgPasswordProcessFail     = "failed to process password"
	msgResetRequested          = "if the account exists, a password reset link has been sent"
	msgPasswordUpdated         = "password updated"
	msgInvalidClientID         = "invalid client id"
	msgInvalidAgencyID         = "invalid agency id"
	msgAuthRequired            = "authentication required"
	msgClientIDRequired        = "clientId query parameter is required"
	msgAccessGranted           = "granted"

	reasonUnknownEmail    = "unknown email"
	reasonBadPassword     = "password mismatch"
	reasonInactiveAccount = "account inactive"
	reasonResetIssued     = "reset token issued"
	reasonResetRedeemed   = "password changed with reset token"
)

const (
	authOpLogin        = "login"
	authOpRefresh      = "refresh"
	authOpResetRequest = "reset_request"
	authOpResetConfirm = "reset_confirm"
	authResultSuccess  = "success"
	authResultFailure  = "failure"
)
