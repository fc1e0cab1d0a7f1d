package oauth

import apperrors "github.com/louisbranch/guildverify/internal/platform/errors"

// Errors reported by the authentication flow. Compare with errors.Is.
var (
	// ErrTimeout is returned when the deadline passes before a token is
	// observed, including a token that arrived after the deadline.
	ErrTimeout = apperrors.New(apperrors.CodeAuthTimeout, "authentication timed out")
	// ErrSenderDropped is returned when the pending entry was discarded
	// without a token, either swept or after a failed exchange.
	ErrSenderDropped = apperrors.New(apperrors.CodeAuthSenderDropped, "authentication abandoned before delivery")
	// ErrReceiverGone is returned by Deliver when nobody waits any more.
	ErrReceiverGone = apperrors.New(apperrors.CodeAuthReceiverGone, "authentication receiver is gone")
	// ErrAlreadyDelivered is returned by a second delivery on one handoff.
	ErrAlreadyDelivered = apperrors.New(apperrors.CodeAuthAlreadyDelivered, "token already delivered")
	// ErrProcessConsumed is returned by a second Wait on one process.
	ErrProcessConsumed = apperrors.New(apperrors.CodeAuthProcessConsumed, "authentication process already awaited")
	// ErrUnknownState is returned for a callback state with no pending entry.
	ErrUnknownState = apperrors.New(apperrors.CodeAuthUnknownState, "unknown or expired state")
)
