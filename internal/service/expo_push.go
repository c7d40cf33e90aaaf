package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"socialsync/internal/logging"
)

// PushSender delivers a visible push message to device tokens.
type PushSender interface {
	Provider() string
	SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}

// ExpoPushClient sends push notifications via Expo's Push API.
//
// The React Native client obtains an Expo push token ("ExponentPushToken[xxx]")
// and registers it with POST /devices. Expo handles delivery to both iOS and
// Android, so no APNs or FCM credentials are needed on this side.
type ExpoPushClient struct {
	httpClient *http.Client
	url        string
}

// ExpoPushMessage is the payload for Expo's Push API.
type ExpoPushMessage struct {
	To       []string          `json:"to"`
	Title    string            `json:"title,omitempty"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Priority string            `json:"priority,omitempty"` // "default", "normal", "high"
}

// ExpoPushResponse is the response from Expo's API.
type ExpoPushResponse struct {
	Data []ExpoPushTicket `json:"data"`
}

type ExpoPushTicket struct {
	Status  string `json:"status"` // "ok" or "error"
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"` // "DeviceNotRegistered", "MessageTooBig", etc.
	} `json:"details,omitempty"`
}

// DefaultExpoPushURL is Expo's public send endpoint.
const DefaultExpoPushURL = "https://exp.host/--/api/v2/push/send"

// NewExpoPushClient creates a new Expo Push client. An empty url selects
// DefaultExpoPushURL.
func NewExpoPushClient(url string) *ExpoPushClient {
	if url == "" {
		url = DefaultExpoPushURL
	}
	return &ExpoPushClient{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		url: url,
	}
}

func (c *ExpoPushClient) Provider() string { return "expo" }

// SendToTokens sends one push message to multiple Expo push tokens.
func (c *ExpoPushClient) SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	log := logging.For("ExpoPush")
	if len(tokens) == 0 {
		return nil
	}

	validTokens := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[") {
			validTokens = append(validTokens, token)
		} else {
			log.WithField("token_prefix", token[:min(20, len(token))]).Debug("Skipping invalid token format")
		}
	}

	if len(validTokens) == 0 {
		log.Debug("No valid Expo tokens to send to")
		return nil
	}

	message := ExpoPushMessage{
		To:       validTokens,
		Title:    title,
		Body:     body,
		Sound:    "default",
		Priority: "high",
		Data:     data,
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expo api error: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var pushResp ExpoPushResponse
	if err := json.Unmarshal(respBody, &pushResp); err != nil {
		// Push was accepted; an unreadable ticket list is not a delivery failure
		log.WithError(err).Warn("Failed to parse response")
		return nil
	}

	successCount := 0
	failCount := 0
	for i, ticket := range pushResp.Data {
		if ticket.Status == "ok" {
			successCount++
		} else {
			failCount++
			log.WithFields(logrus.Fields{"index": i, "error": ticket.Details.Error}).Warn("Token failed: " + ticket.Message)
		}
	}

	log.WithFields(logrus.Fields{
		"tokens":  len(validTokens),
		"success": successCount,
		"failed":  failCount,
	}).Info("Push sent")

	return nil
}
