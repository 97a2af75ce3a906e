package fcm

import "net/http"

// Gateway error codes, as spelled in the legacy protocol.
const (
	CodeMissingRegistration       = "MissingRegistration"
	CodeInvalidRegistration       = "InvalidRegistration"
	CodeNotRegistered             = "NotRegistered"
	CodeInvalidPackageName        = "InvalidPackageName"
	CodeMismatchSenderID          = "MismatchSenderId"
	CodeMessageTooBig             = "MessageTooBig"
	CodeInvalidTTL                = "InvalidTtl"
	CodeInvalidDataKey            = "InvalidDataKey"
	CodeDeviceMessageRateExceeded = "DeviceMessageRateExceeded"
	CodeTopicsMessageRateExceeded = "TopicsMessageRateExceeded"
	CodeUnavailable               = "Unavailable"
	CodeInternalServerError       = "InternalServerError"
)

// Abort reasons for outcomes that end the attempt before any per-recipient
// handling.
const (
	AbortMalformedRequest  = "malformed_request"
	AbortAuthError         = "auth_error"
	AbortRecipientMismatch = "recipient_mismatch"
)

// Op is the corrective action a classified result demands from the worker.
type Op int

const (
	// OpLog records a diagnostic and changes nothing.
	OpLog Op = iota
	// OpRemoveToken invalidates the recipient's token in the store.
	OpRemoveToken
	// OpReplaceToken rotates the recipient's token to the returned one.
	OpReplaceToken
	// OpRetry re-submits the whole message after a delay.
	OpRetry
	// OpAbort ends the attempt: malformed request, bad credentials or a
	// recipient/result count mismatch. Never combined with other actions.
	OpAbort
)

// Action pairs an Op with the recipient token and gateway code it was
// derived from. NewToken is set only for OpReplaceToken.
type Action struct {
	Op       Op
	Code     string
	Token    string
	NewToken string
}

// Classify maps a gateway HTTP status and per-recipient result list onto
// the actions the worker must perform. It is a pure function; recipients
// must be the token list the request was built from, in request order.
//
// Informational codes and token invalidation only carry diagnostic weight
// on HTTP 200. Transient codes and token rotation are honored regardless
// of status.
func Classify(status int, recipients []string, results []Result) []Action {
	switch status {
	case http.StatusBadRequest:
		return []Action{{Op: OpAbort, Code: AbortMalformedRequest}}
	case http.StatusUnauthorized:
		return []Action{{Op: OpAbort, Code: AbortAuthError}}
	}

	if len(results) != len(recipients) {
		return []Action{{Op: OpAbort, Code: AbortRecipientMismatch}}
	}

	var actions []Action
	for i, result := range results {
		token := recipients[i]

		if result.Error == "" {
			if result.RegistrationID != "" {
				// Delivered, but the gateway rotated the token.
				actions = append(actions, Action{
					Op:       OpReplaceToken,
					Token:    token,
					NewToken: result.RegistrationID,
				})
			}
			continue
		}

		if status == http.StatusOK {
			switch result.Error {
			case CodeInvalidRegistration, CodeNotRegistered:
				actions = append(actions, Action{Op: OpRemoveToken, Code: result.Error, Token: token})
			case CodeMissingRegistration, CodeInvalidPackageName, CodeMismatchSenderID,
				CodeMessageTooBig, CodeInvalidTTL, CodeInvalidDataKey,
				CodeTopicsMessageRateExceeded:
				actions = append(actions, Action{Op: OpLog, Code: result.Error, Token: token})
			case CodeDeviceMessageRateExceeded:
				// Expected under device-level rate limiting; not actionable.
			}
		}

		if result.Error == CodeUnavailable || result.Error == CodeInternalServerError {
			actions = append(actions, Action{Op: OpRetry, Code: result.Error, Token: token})
		}
	}
	return actions
}
