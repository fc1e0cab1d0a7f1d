// Package errors provides structured error handling with correlation ids.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Authentication flow errors
	CodeAuthTimeout          Code = "AUTH_TIMEOUT"
	CodeAuthUnknownState     Code = "AUTH_UNKNOWN_STATE"
	CodeAuthSenderDropped    Code = "AUTH_SENDER_DROPPED"
	CodeAuthReceiverGone     Code = "AUTH_RECEIVER_GONE"
	CodeAuthAlreadyDelivered Code = "AUTH_ALREADY_DELIVERED"
	CodeAuthProcessConsumed  Code = "AUTH_PROCESS_CONSUMED"
	CodeAuthProviderDenied   Code = "AUTH_PROVIDER_DENIED"

	// Identity provider errors
	CodeProviderFetch     Code = "PROVIDER_FETCH"
	CodeProviderNonOK     Code = "PROVIDER_NON_OK"
	CodeProviderMalformed Code = "PROVIDER_MALFORMED"

	// Verification errors
	CodeVerifyAlreadyVerified  Code = "VERIFY_ALREADY_VERIFIED"
	CodeVerifyNoVerifiedRole   Code = "VERIFY_NO_VERIFIED_ROLE"
	CodeVerifyNoEmailDomain    Code = "VERIFY_NO_EMAIL_DOMAIN"
	CodeVerifyNoLevels         Code = "VERIFY_NO_LEVELS"
	CodeVerifyNoClasses        Code = "VERIFY_NO_CLASSES"
	CodeVerifyDomainNotAllowed Code = "VERIFY_DOMAIN_NOT_ALLOWED"
	CodeVerifyInvalidEmail     Code = "VERIFY_INVALID_EMAIL"
	CodeVerifyMemberUnknown    Code = "VERIFY_MEMBER_UNKNOWN"
	CodeVerifyRoleDeleted      Code = "VERIFY_ROLE_DELETED"
	CodeVerifySelectionTimeout Code = "VERIFY_SELECTION_TIMEOUT"
	CodeVerifyNotVerified      Code = "VERIFY_NOT_VERIFIED"
	CodeVerifyInvalidSelection Code = "VERIFY_INVALID_SELECTION"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to the status served at HTTP boundaries.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeAuthUnknownState,
		CodeAuthProviderDenied,
		CodeVerifyInvalidEmail,
		CodeVerifyInvalidSelection:
		return http.StatusBadRequest

	case CodeAuthTimeout:
		return http.StatusRequestTimeout

	case CodeProviderFetch,
		CodeProviderNonOK,
		CodeProviderMalformed:
		return http.StatusBadGateway

	case CodeNotFound,
		CodeVerifyMemberUnknown,
		CodeVerifyNotVerified:
		return http.StatusNotFound

	case CodeAuthAlreadyDelivered,
		CodeAuthProcessConsumed,
		CodeVerifyAlreadyVerified:
		return http.StatusConflict

	case CodeVerifyNoVerifiedRole,
		CodeVerifyNoEmailDomain,
		CodeVerifyNoLevels,
		CodeVerifyNoClasses,
		CodeVerifyDomainNotAllowed:
		return http.StatusPreconditionFailed

	default:
		return http.StatusInternalServerError
	}
}

// MessageKey is the catalog key holding the user-facing text for the code.
func (c Code) MessageKey() string {
	return "errors." + string(c)
}
