// Package firestore implements the durable device-token store on Google
// Cloud Firestore.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/proxemics-lab/go-push-service/pkg/push"
)

// Store implements dispatch.TokenStore using Firestore.
type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

// deviceRecord is the internal DB representation of one registered device.
type deviceRecord struct {
	Agent     string    `firestore:"agent"`
	Token     string    `firestore:"token"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// RegisterToken upserts a device token for a customer. The document ID is
// the hash of the token, which deduplicates re-registrations and avoids
// hot-spotting on sequential IDs.
func (s *Store) RegisterToken(ctx context.Context, customerID string, agent push.Agent, token string) error {
	record := deviceRecord{
		Agent:     string(agent),
		Token:     token,
		UpdatedAt: time.Now(),
	}
	_, err := s.deviceRef(customerID, hashToken(token)).Set(ctx, record)
	return err
}

// RemoveToken deletes a device token. Deleting an absent document is not
// an error, which keeps the operation idempotent for the dispatch worker.
func (s *Store) RemoveToken(ctx context.Context, customerID, token string) error {
	_, err := s.deviceRef(customerID, hashToken(token)).Delete(ctx)
	return err
}

// ReplaceToken swaps a rotated token: the old document is removed and the
// new token registered under the same agent. Both steps are idempotent, so
// a repeated classification of the same rotation converges.
func (s *Store) ReplaceToken(ctx context.Context, customerID string, agent push.Agent, newToken, oldToken string) error {
	if _, err := s.deviceRef(customerID, hashToken(oldToken)).Delete(ctx); err != nil {
		return fmt.Errorf("firestore: delete rotated token: %w", err)
	}
	return s.RegisterToken(ctx, customerID, agent, newToken)
}

// Tokens lists the registered tokens for a customer.
func (s *Store) Tokens(ctx context.Context, customerID string) ([]string, error) {
	iter := s.devicesCollection(customerID).Documents(ctx)
	defer iter.Stop()

	tokens := make([]string, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore: iteration failed: %w", err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			// Corrupt rows are skipped rather than failing the lookup.
			continue
		}
		if record.Token != "" {
			tokens = append(tokens, record.Token)
		}
	}
	return tokens, nil
}

// deviceRef: customers/{customerID}/devices/{tokenHash}
func (s *Store) deviceRef(customerID, docID string) *firestore.DocumentRef {
	return s.devicesCollection(customerID).Doc(docID)
}

func (s *Store) devicesCollection(customerID string) *firestore.CollectionRef {
	return s.client.Collection("customers").Doc(customerID).Collection("devices")
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
