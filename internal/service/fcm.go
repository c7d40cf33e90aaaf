package service

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"

	"socialsync/internal/logging"
)

// FCMClient wraps the Firebase Cloud Messaging client. Device tokens are
// FCM registration tokens obtained by the native app.
type FCMClient struct {
	client *messaging.Client
}

// NewFCMClient builds a messaging client from the shared Firebase app.
func NewFCMClient(ctx context.Context, app *firebase.App) (*FCMClient, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}
	logging.For("FCM").Info("Initialized")
	return &FCMClient{client: client}, nil
}

func (c *FCMClient) Provider() string { return "fcm" }

// SendToTokens sends a push notification to multiple device tokens.
// FCM caps a multicast at 500 tokens; a single user never gets close.
func (c *FCMClient) SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	if len(tokens) == 0 {
		return nil
	}
	log := logging.For("FCM")

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}

	response, err := c.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return fmt.Errorf("send multicast: %w", err)
	}

	log.WithFields(logrus.Fields{
		"tokens":  len(tokens),
		"success": response.SuccessCount,
		"failed":  response.FailureCount,
	}).Info("Push sent")

	for i, resp := range response.Responses {
		if !resp.Success {
			log.WithError(resp.Error).WithField("index", i).Warn("Token failed")
		}
	}

	return nil
}
