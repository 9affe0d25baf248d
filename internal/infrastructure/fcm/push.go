package fcm

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/go-notify-nosql/internal/config"
	"github.com/go-notify-nosql/internal/domain"
	"google.golang.org/api/option"
)

// multicastLimit is the FCM cap on tokens per multicast request.
const multicastLimit = 500

type multicastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Pusher delivers push messages through Firebase Cloud Messaging.
type Pusher struct {
	client    multicastClient
	isInvalid func(error) bool
}

func NewPusher(ctx context.Context, cfg *config.Config) (*Pusher, error) {
	if cfg.FCMCredentialsFile == "" {
		return nil, errors.New("FCM_CREDENTIALS_FILE is required for the fcm push provider")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FCMProjectID}, option.WithCredentialsFile(cfg.FCMCredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return &Pusher{client: client, isInvalid: invalidToken}, nil
}

// SendMulticast sends msg to tokens in chunks of multicastLimit. A failed
// chunk marks its tokens failed without aborting the rest.
func (p *Pusher) SendMulticast(ctx context.Context, tokens []string, msg domain.PushMessage) (domain.PushBatchResult, error) {
	var res domain.PushBatchResult
	for start := 0; start < len(tokens); start += multicastLimit {
		end := start + multicastLimit
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := tokens[start:end]
		br, err := p.client.SendEachForMulticast(ctx, buildMessage(chunk, msg))
		if err != nil {
			for _, tok := range chunk {
				res.Results = append(res.Results, domain.PushResult{Token: tok, Err: fmt.Errorf("fcm multicast: %w", err)})
			}
			res.FailureCount += len(chunk)
			continue
		}
		for i, r := range br.Responses {
			pr := domain.PushResult{Token: chunk[i]}
			if !r.Success {
				pr.Err = r.Error
				pr.Invalid = p.isInvalid(r.Error)
				res.FailureCount++
			} else {
				res.SuccessCount++
			}
			res.Results = append(res.Results, pr)
		}
	}
	return res, nil
}

func buildMessage(tokens []string, msg domain.PushMessage) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority:     "high",
			Notification: &messaging.AndroidNotification{Sound: msg.Sound},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: msg.Sound}},
		},
	}
}

// invalidToken reports whether FCM says the token will never work again.
// INVALID_ARGUMENT also covers payload faults, so it never prunes a token.
func invalidToken(err error) bool {
	return messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err)
}
