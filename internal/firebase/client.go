package firebase

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebasesdk "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Client wraps the Firebase services the notifier needs.
type Client struct {
	Firestore *firestore.Client
	Messaging *messaging.Client
}

// NewClient creates Firestore and Cloud Messaging clients for projectID.
// An empty credJSON falls back to application default credentials.
func NewClient(ctx context.Context, projectID, credJSON string) (*Client, error) {
	var opts []option.ClientOption
	if credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	config := &firebasesdk.Config{
		ProjectID: projectID,
	}

	app, err := firebasesdk.NewApp(ctx, config, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Firestore client: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		_ = firestoreClient.Close()
		return nil, fmt.Errorf("failed to get Messaging client: %w", err)
	}

	return &Client{
		Firestore: firestoreClient,
		Messaging: messagingClient,
	}, nil
}

// Close closes the Firestore client.
func (c *Client) Close() error {
	if c.Firestore != nil {
		return c.Firestore.Close()
	}
	return nil
}
