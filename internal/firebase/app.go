package firebase

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"socialsync/internal/config"
	"socialsync/internal/logging"
)

// NewApp initializes the Firebase Admin SDK from service account fields.
//
// The credentials (project ID, client email, private key) come from the
// Firebase Console: Project Settings -> Service Accounts -> Generate New
// Private Key. One App is shared by the Realtime Database store, Firebase
// ID token verification and FCM push.
func NewApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	// .env files usually carry the PEM key with literal "\n" sequences
	privateKey := strings.ReplaceAll(cfg.FirebasePrivateKey, "\\n", "\n")

	credsJSON := fmt.Sprintf(`{
		"type": "service_account",
		"project_id": %q,
		"private_key": %q,
		"client_email": %q,
		"token_uri": "https://oauth2.googleapis.com/token"
	}`, cfg.FirebaseProjectID, privateKey, cfg.FirebaseClientEmail)

	appCfg := &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	if cfg.FirebaseDatabaseURL != "" {
		appCfg.DatabaseURL = cfg.FirebaseDatabaseURL
	}

	app, err := firebase.NewApp(ctx, appCfg, option.WithCredentialsJSON([]byte(credsJSON)))
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	logging.For("Firebase").WithField("project", cfg.FirebaseProjectID).Info("Initialized")
	return app, nil
}
