// Package dispatch contains the public contracts between the dispatch core
// and its collaborators: the message submitter and the device-token store.
package dispatch

import (
	"context"

	"github.com/proxemics-lab/go-push-service/pkg/push"
)

// Submitter accepts messages for asynchronous delivery. Submit never blocks
// and never reports failure to the caller; a message that cannot be
// enqueued is dropped with a log entry.
type Submitter interface {
	Submit(msg *push.Message)
}

// TokenStore defines the contract for managing customer device tokens.
// The dispatch core only ever removes or replaces tokens in reaction to
// gateway responses; registration belongs to the API surface. Callers must
// keep both operations idempotent: near-simultaneous classifications for
// the same token may invoke them more than once.
type TokenStore interface {
	// RegisterToken adds or updates a device token for a customer.
	RegisterToken(ctx context.Context, customerID string, agent push.Agent, token string) error

	// RemoveToken deletes an invalidated device token.
	RemoveToken(ctx context.Context, customerID, token string) error

	// ReplaceToken swaps a rotated token: newToken takes the place of
	// oldToken for the given customer and agent.
	ReplaceToken(ctx context.Context, customerID string, agent push.Agent, newToken, oldToken string) error

	// Tokens lists the registered tokens for a customer.
	Tokens(ctx context.Context, customerID string) ([]string, error)
}

// TokenInvalidator is the narrow slice of TokenStore the dispatch worker
// needs.
type TokenInvalidator interface {
	RemoveToken(ctx context.Context, customerID, token string) error
	ReplaceToken(ctx context.Context, customerID string, agent push.Agent, newToken, oldToken string) error
}
