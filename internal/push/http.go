package push

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config configures the HTTP provider.
type Config struct {
	Endpoint  string        // full URL of the multicast send endpoint
	ServerKey string        // sent as "Authorization: key=<ServerKey>"
	Timeout   time.Duration // per attempt
	Retries   int           // extra attempts on transport errors and 5xx
}

// New returns an HTTPProvider when endpoint and key are both set, otherwise Noop.
func New(cfg Config) Provider {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.ServerKey) == "" {
		return Noop{}
	}
	return NewHTTPProvider(cfg)
}

// HTTPProvider talks to an FCM-compatible multicast endpoint
// (registration_ids in, one result per token out).
type HTTPProvider struct {
	client   *resty.Client
	endpoint string
}

type sendRequest struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Priority        string            `json:"priority"`
	Notification    notification      `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type sendResponse struct {
	MulticastID int64        `json:"multicast_id"`
	Success     int          `json:"success"`
	Failure     int          `json:"failure"`
	Results     []sendResult `json:"results"`
}

type sendResult struct {
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewHTTPProvider builds the resty client for cfg.
func NewHTTPProvider(cfg Config) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "key="+cfg.ServerKey)

	return &HTTPProvider{client: client, endpoint: strings.TrimSpace(cfg.Endpoint)}
}

// SendMulticast posts msg for all tokens. Per-token rejections are reported
// in the result; only whole-batch failures return an error.
func (p *HTTPProvider) SendMulticast(ctx context.Context, tokens []string, msg Message) (BatchResult, error) {
	if len(tokens) == 0 {
		return BatchResult{}, nil
	}

	body := sendRequest{
		RegistrationIDs: tokens,
		Priority:        "high",
		Notification:    notification{Title: msg.Title, Body: msg.Body},
		Data:            msg.Data,
	}

	var out sendResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(p.endpoint)
	if err != nil {
		if isTimeout(err) {
			return BatchResult{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return BatchResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return BatchResult{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}

	return tally(tokens, out), nil
}

// tally maps provider results back onto tokens. When the provider omits
// per-token results, its aggregate counts are used; a reply with neither
// confirms nothing, so every token counts as failed.
func tally(tokens []string, out sendResponse) BatchResult {
	if len(out.Results) != len(tokens) {
		res := BatchResult{SuccessCount: out.Success, FailureCount: out.Failure}
		if res.SuccessCount+res.FailureCount == 0 {
			res.FailureCount = len(tokens)
		}
		return res
	}
	var res BatchResult
	for i, r := range out.Results {
		if r.Error != "" {
			res.FailureCount++
			res.Failures = append(res.Failures, Failure{Token: tokens[i], Reason: r.Error})
			continue
		}
		res.SuccessCount++
	}
	return res
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
