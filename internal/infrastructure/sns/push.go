package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-notify-nosql/internal/config"
	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/infrastructure/awsinfra"
	"golang.org/x/sync/errgroup"
)

// publishConcurrency caps in-flight Publish calls per multicast.
const publishConcurrency = 16

// api is the subset of the SNS client used for mobile push.
type api interface {
	CreatePlatformEndpoint(ctx context.Context, in *sns.CreatePlatformEndpointInput, optFns ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error)
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Pusher delivers push messages through SNS mobile push. Device tokens are
// registered as platform endpoints on first use and the endpoint ARN is cached.
type Pusher struct {
	client api
	appARN string

	mu        sync.Mutex
	endpoints map[string]string // token -> endpoint ARN
}

func NewPusher(ctx context.Context, cfg *config.Config) (*Pusher, error) {
	if cfg.SNSPlatformApplicationARN == "" {
		return nil, errors.New("SNS_PLATFORM_APPLICATION_ARN is required for the sns push provider")
	}
	awsCfg, err := awsinfra.Load(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, err
	}
	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	})
	return newPusher(client, cfg.SNSPlatformApplicationARN), nil
}

func newPusher(client api, appARN string) *Pusher {
	return &Pusher{client: client, appARN: appARN, endpoints: make(map[string]string)}
}

// SendMulticast publishes msg to every token concurrently. Per-token failures
// are reported in the result; the returned error is reserved for payload
// encoding problems.
func (p *Pusher) SendMulticast(ctx context.Context, tokens []string, msg domain.PushMessage) (domain.PushBatchResult, error) {
	payload, err := encodeMessage(msg)
	if err != nil {
		return domain.PushBatchResult{}, err
	}

	results := make([]domain.PushResult, len(tokens))
	var g errgroup.Group
	g.SetLimit(publishConcurrency)
	for i, tok := range tokens {
		g.Go(func() error {
			results[i] = p.publish(ctx, tok, payload)
			return nil
		})
	}
	_ = g.Wait()

	res := domain.PushBatchResult{Results: results}
	for _, r := range results {
		if r.Err == nil {
			res.SuccessCount++
		} else {
			res.FailureCount++
		}
	}
	return res, nil
}

func (p *Pusher) publish(ctx context.Context, token, payload string) domain.PushResult {
	arn, err := p.endpoint(ctx, token)
	if err != nil {
		return domain.PushResult{Token: token, Err: err, Invalid: invalidToken(err)}
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(arn),
		Message:          aws.String(payload),
		MessageStructure: aws.String("json"),
	})
	if err != nil {
		invalid := invalidToken(err)
		if invalid {
			slog.Info("sns endpoint rejected, dropping cached arn", "endpoint", arn, "err", err)
			p.forget(token)
		}
		return domain.PushResult{Token: token, Err: fmt.Errorf("sns publish: %w", err), Invalid: invalid}
	}
	return domain.PushResult{Token: token}
}

func (p *Pusher) endpoint(ctx context.Context, token string) (string, error) {
	p.mu.Lock()
	arn, ok := p.endpoints[token]
	p.mu.Unlock()
	if ok {
		return arn, nil
	}
	out, err := p.client.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(p.appARN),
		Token:                  aws.String(token),
	})
	if err != nil {
		return "", fmt.Errorf("sns create endpoint: %w", err)
	}
	arn = aws.ToString(out.EndpointArn)
	p.mu.Lock()
	p.endpoints[token] = arn
	p.mu.Unlock()
	return arn, nil
}

func (p *Pusher) forget(token string) {
	p.mu.Lock()
	delete(p.endpoints, token)
	p.mu.Unlock()
}

// invalidToken reports whether SNS rejected the token or its endpoint for good.
func invalidToken(err error) bool {
	var (
		disabled *types.EndpointDisabledException
		badParam *types.InvalidParameterException
		notFound *types.NotFoundException
	)
	return errors.As(err, &disabled) || errors.As(err, &badParam) || errors.As(err, &notFound)
}

type gcmPayload struct {
	Notification map[string]string `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

// encodeMessage renders the per-platform JSON envelope SNS expects when
// MessageStructure is "json".
func encodeMessage(msg domain.PushMessage) (string, error) {
	gcm, err := json.Marshal(gcmPayload{
		Notification: map[string]string{"title": msg.Title, "body": msg.Body, "sound": msg.Sound},
		Data:         msg.Data,
	})
	if err != nil {
		return "", fmt.Errorf("encode gcm payload: %w", err)
	}
	apns := map[string]any{
		"aps": map[string]any{
			"alert": map[string]string{"title": msg.Title, "body": msg.Body},
			"sound": msg.Sound,
		},
	}
	for k, v := range msg.Data {
		apns[k] = v
	}
	apnsJSON, err := json.Marshal(apns)
	if err != nil {
		return "", fmt.Errorf("encode apns payload: %w", err)
	}
	envelope, err := json.Marshal(map[string]string{
		"default":      msg.Body,
		"GCM":          string(gcm),
		"APNS":         string(apnsJSON),
		"APNS_SANDBOX": string(apnsJSON),
	})
	if err != nil {
		return "", fmt.Errorf("encode sns envelope: %w", err)
	}
	return string(envelope), nil
}
