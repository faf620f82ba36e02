package http

import (
	"errors"
	"net/http"

	"stexs-auth/internal/service"
)

const (
	codeInternalError     = "INTERNAL_ERROR"
	codeInvalidRequest    = "INVALID_REQUEST"
	codeInvalidInputData  = "INVALID_INPUT_DATA"
	codeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	codeRouteNotFound     = "ROUTE_NOT_FOUND"
)

var (
	errCredentialsRequired  = errors.New("credentials required")
	errCredentialsBadFormat = errors.New("credentials bad format")
)

// apiError es la traduccion estable de un error de servicio.
type apiError struct {
	status  int
	code    string
	message string

	// path es el campo del body al que se atribuye el rechazo, si aplica.
	path string
}

// errorTable se recorre en orden con errors.Is; el primer match gana.
var errorTable = []struct {
	err error
	api apiError
}{
	{errCredentialsRequired, apiError{http.StatusBadRequest, "CREDENTIALS_REQUIRED", "No authorization token was found.", ""}},
	{errCredentialsBadFormat, apiError{http.StatusBadRequest, "CREDENTIALS_BAD_FORMAT", "Format is Authorization: Bearer [token].", ""}},
	{service.ErrTokenInvalid, apiError{http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token provided.", ""}},
	{service.ErrTokenExpired, apiError{http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token provided.", ""}},
	{service.ErrInvalidGrantType, apiError{http.StatusForbidden, "INVALID_GRANT_TYPE", "Provided token does not have the required grant type.", ""}},
	{service.ErrUnsupportedGrantType, apiError{http.StatusBadRequest, "INVALID_GRANT_TYPE", "Provided grant type is invalid.", "grant_type"}},

	{service.ErrInvalidCredentials, apiError{http.StatusBadRequest, "INVALID_CREDENTIALS", "Invalid credentials. Verify your username/email and password.", ""}},
	{service.ErrAccountBanned, apiError{http.StatusBadRequest, "ACCOUNT_BANNED", "Your account is banned. If you believe you have been wrongly banned, please contact the support.", ""}},
	{service.ErrEmailNotVerified, apiError{http.StatusBadRequest, "EMAIL_NOT_VERIFIED", "Please verify your email before proceeding.", ""}},
	{service.ErrUserNotFound, apiError{http.StatusNotFound, "EMAIL_NOT_FOUND", "Email address not found.", "email"}},
	{service.ErrUserAlreadyExists, apiError{http.StatusConflict, "USER_ALREADY_EXISTS", "An account with this email or username already exists.", ""}},
	{service.ErrEmailAlreadyVerified, apiError{http.StatusBadRequest, "EMAIL_ALREADY_VERIFIED", "Your email has been already verified.", ""}},
	{service.ErrVerificationCodeInvalid, apiError{http.StatusBadRequest, "INVALID_CODE", "Provided code is invalid.", "code"}},
	{service.ErrVerificationCodeExpired, apiError{http.StatusForbidden, "CODE_EXPIRED", "The provided code has expired.", "code"}},

	{service.ErrInvalidCode, apiError{http.StatusForbidden, "INVALID_CODE", "Provided code is invalid.", "code"}},
	{service.ErrMFACodeExpired, apiError{http.StatusForbidden, "CODE_EXPIRED", "The provided code has expired.", "code"}},
	{service.ErrUnsupportedType, apiError{http.StatusBadRequest, "UNSUPPORTED_TYPE", "Provided type isn't supported.", "type"}},
	{service.ErrTOTPAlreadyEnabled, apiError{http.StatusBadRequest, "TOTP_ALREADY_ENABLED", "TOTP MFA is already enabled.", ""}},
	{service.ErrTOTPAlreadyVerified, apiError{http.StatusBadRequest, "TOTP_ALREADY_VERIFIED", "TOTP MFA is already verified.", ""}},
	{service.ErrTOTPAlreadyDisabled, apiError{http.StatusBadRequest, "TOTP_ALREADY_DISABLED", "TOTP MFA is already disabled.", ""}},
	{service.ErrTOTPDisabled, apiError{http.StatusForbidden, "TOTP_DISABLED", "You can't use the MFA TOTP method because it is disabled.", "type"}},
	{service.ErrEmailMFAAlreadyEnabled, apiError{http.StatusBadRequest, "MFA_EMAIL_ALREADY_ENABLED", "Email MFA is already enabled.", ""}},
	{service.ErrEmailMFAAlreadyDisabled, apiError{http.StatusBadRequest, "MFA_EMAIL_ALREADY_DISABLED", "Email MFA is already disabled.", ""}},
	{service.ErrEmailMFADisabled, apiError{http.StatusForbidden, "MFA_EMAIL_DISABLED", "You can't use the MFA email method because it is disabled.", "type"}},
	{service.ErrCannotDisableLastMethod, apiError{http.StatusBadRequest, "MFA_CANNOT_BE_COMPLETELY_DISABLED", "MFA cannot be disabled completely from the account.", ""}},
	{service.ErrMFARequired, apiError{http.StatusForbidden, "MFA_REQUIRED", "Please confirm this operation with one of your MFA methods.", "code"}},

	{service.ErrClientNotFound, apiError{http.StatusBadRequest, "CLIENT_NOT_FOUND", "Client not found or invalid combination of client_id, redirect_url and scopes.", ""}},
	{service.ErrAlreadyConnected, apiError{http.StatusBadRequest, "CLIENT_ALREADY_CONNECTED", "Given client is already connected with the user.", ""}},
	{service.ErrInvalidAuthorizationCode, apiError{http.StatusBadRequest, "INVALID_AUTHORIZATION_CODE", "Authorization code is invalid.", "code"}},
	{service.ErrCodeExpired, apiError{http.StatusBadRequest, "CODE_EXPIRED", "The provided code has expired.", "code"}},
	{service.ErrInvalidClientCredentials, apiError{http.StatusBadRequest, "INVALID_CLIENT_CREDENTIALS", "Provided client credentials are invalid.", ""}},
	{service.ErrNoClientScopesSelected, apiError{http.StatusBadRequest, "NO_CLIENT_SCOPES_SELECTED", "No scopes for client credentials grant selected for this client.", ""}},
	{service.ErrInvalidRefreshToken, apiError{http.StatusBadRequest, "INVALID_REFRESH_TOKEN", "Provided refresh token is invalid.", "refresh_token"}},
	{service.ErrConnectionNotFound, apiError{http.StatusNotFound, "CONNECTION_NOT_FOUND", "Provided client connection not found.", ""}},
	{service.ErrAlreadyRevoked, apiError{http.StatusNotFound, "CONNECTION_ALREADY_REVOKED", "Connection not found or is already revoked for the given refresh token.", "refresh_token"}},
	{service.ErrSessionNotFound, apiError{http.StatusNotFound, "SESSION_NOT_FOUND", "No active session was found.", ""}},
}

func lookupAPIError(err error) (apiError, bool) {
	for _, entry := range errorTable {
		if errors.Is(err, entry.err) {
			return entry.api, true
		}
	}
	return apiError{}, false
}
