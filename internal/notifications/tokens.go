package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/eternisai/report-notifier/internal/logger"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection  = "users"
	tokensCollection = "fcmTokens"
)

// ErrInvalidPathSegment is returned for user IDs or tokens that cannot be used
// as a Firestore document ID.
var ErrInvalidPathSegment = errors.New("invalid firestore path segment")

// FirestoreTokenStore keeps device tokens at /users/{uid}/fcmTokens/{token}.
// The document ID is the token itself; document fields (platform, updatedAt)
// are written by the client and ignored here.
type FirestoreTokenStore struct {
	firestoreClient *firestore.Client
	logger          *logger.Logger
}

// NewFirestoreTokenStore creates a token store backed by Firestore.
func NewFirestoreTokenStore(firestoreClient *firestore.Client, logger *logger.Logger) *FirestoreTokenStore {
	return &FirestoreTokenStore{
		firestoreClient: firestoreClient,
		logger:          logger.WithComponent("token-store"),
	}
}

// ListTokens returns the IDs of all documents under the user's token collection.
func (s *FirestoreTokenStore) ListTokens(ctx context.Context, uid string) ([]string, error) {
	if err := validateSegment(uid); err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}

	log := s.logger.WithContext(ctx)

	iter := s.tokens(uid).Documents(ctx)
	defer iter.Stop()

	var tokens []string
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			log.Error("failed to list push tokens",
				slog.String("user_id", uid),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to list push tokens: %w", err)
		}
		tokens = append(tokens, doc.Ref.ID)
	}

	log.Debug("fetched push tokens",
		slog.String("user_id", uid),
		slog.Int("token_count", len(tokens)))

	return tokens, nil
}

// DeleteToken removes a single token document. A document that is already gone
// counts as deleted.
func (s *FirestoreTokenStore) DeleteToken(ctx context.Context, uid, token string) error {
	if err := validateSegment(uid); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	if err := validateSegment(token); err != nil {
		return fmt.Errorf("token: %w", err)
	}

	_, err := s.tokens(uid).Doc(token).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete push token: %w", err)
	}

	return nil
}

func (s *FirestoreTokenStore) tokens(uid string) *firestore.CollectionRef {
	return s.firestoreClient.Collection(usersCollection).Doc(uid).Collection(tokensCollection)
}

func validateSegment(segment string) error {
	if segment == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPathSegment)
	}
	if strings.Contains(segment, "/") {
		return fmt.Errorf("%w: %q contains '/'", ErrInvalidPathSegment, segment)
	}
	return nil
}
