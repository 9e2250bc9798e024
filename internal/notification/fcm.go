package notification

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"smokeFreeAPI/internal/logger"
)

var ErrNoCredentials = errors.New("no firebase credentials configured")

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMService struct {
	client messageSender
}

// NewFCMService prefers base64 encoded service account JSON and falls back
// to a key file on disk.
func NewFCMService(ctx context.Context, encodedCreds, localFilePath string) (*FCMService, error) {
	var opt option.ClientOption

	if encodedCreds != "" {
		decoded, err := base64.StdEncoding.DecodeString(encodedCreds)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		logger.Info("FCM: using credentials from environment")
	} else {
		if _, err := os.Stat(localFilePath); err != nil {
			return nil, fmt.Errorf("%w: %s not readable: %v", ErrNoCredentials, localFilePath, err)
		}
		opt = option.WithCredentialsFile(localFilePath)
		logger.Info("FCM: using credentials file", "path", localFilePath)
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}
	return &FCMService{client: client}, nil
}

func buildMessage(token, title, body string, data map[string]string) *messaging.Message {
	return &messaging.Message{
		Token: token,
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
	}
}

// SendPush sends one message per android token; the batch endpoint is not
// used. It fails only when every send failed.
func (s *FCMService) SendPush(ctx context.Context, tokens []DeviceToken, title, body string, data map[string]any) error {
	var androidTokens []string
	for _, t := range tokens {
		if t.Platform == "android" || t.Platform == "" {
			androidTokens = append(androidTokens, t.Token)
		}
	}
	if len(androidTokens) == 0 {
		return nil
	}

	stringData := make(map[string]string, len(data))
	for k, v := range data {
		stringData[k] = fmt.Sprintf("%v", v)
	}

	var sent int
	var errs []error
	for _, token := range androidTokens {
		if _, err := s.client.Send(ctx, buildMessage(token, title, body, stringData)); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}

	logger.Debug("FCM: push sent", "sent", sent, "failed", len(errs))
	if sent == 0 {
		return fmt.Errorf("all %d push sends failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
