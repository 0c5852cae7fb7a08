package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"golang.org/x/time/rate"

	"reelforge/internal/assetcache"
	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/services"
)

const (
	imagesPath   = "/v1/images"
	videosPath   = "/v1/videos"
	speechPath   = "/v1/speech"
	assemblePath = "/v1/assemble"
	healthPath   = "/healthz"
)

// Client is a single-shot client for the generation backend. It paces
// requests with a shared limiter and never retries; the scheduler owns the
// retry budget.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *assetcache.Manager
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient builds a backend client from configuration. Pacing follows
// generation.requests_per_minute and generation.burst.
func NewClient(cfg *config.Config, cache *assetcache.Manager, logger *slog.Logger, opts ...Option) *Client {
	timeout := time.Duration(cfg.Generation.TimeoutSeconds) * time.Second
	rpm := cfg.Generation.RequestsPerMinute
	burst := cfg.Generation.Burst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rpm > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
	}
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.Generation.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.Generation.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		cache:      cache,
		logger:     logging.NewComponentLogger(logger, "generation"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Asset is a stored generation result.
type Asset struct {
	Ref             string  `json:"ref"`
	Format          string  `json:"format"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// assetResponse is the backend's answer for every synthesis endpoint.
// Exactly one of URL and Data is set.
type assetResponse struct {
	URL             string  `json:"url"`
	Data            string  `json:"data"`
	Format          string  `json:"format"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// GenerateImage synthesizes one image and stores it in the cache.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (Asset, error) {
	return c.generate(ctx, imagesPath, req, "png")
}

// GenerateVideo synthesizes one clip from a built workflow request.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (Asset, error) {
	return c.generate(ctx, videosPath, req, "mp4")
}

// GenerateSpeech synthesizes narration audio.
func (c *Client) GenerateSpeech(ctx context.Context, req SpeechRequest) (Asset, error) {
	return c.generate(ctx, speechPath, req, "wav")
}

// Assemble stitches finished clips and audio into the final deliverable.
func (c *Client) Assemble(ctx context.Context, req AssembleRequest) (Asset, error) {
	return c.generate(ctx, assemblePath, req, req.Container)
}

// HealthCheck verifies the backend answers before any job is dispatched.
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "generation", "health", "build request", err)
	}
	c.authorize(httpReq)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return services.Wrap(services.ErrTransient, "generation", "health", "backend unreachable", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrTransient, "generation", "health",
			fmt.Sprintf("backend returned status %d", resp.StatusCode), nil)
	}
	return nil
}

// generate performs one synthesis call and stores the result.
func (c *Client) generate(ctx context.Context, path string, payload any, defaultFormat string) (Asset, error) {
	op := strings.TrimPrefix(path, "/v1/")
	if err := c.limiter.Wait(ctx); err != nil {
		return Asset{}, classifySendError("generation", op, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrInvalidRequest, "generation", op, "encode request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Asset{}, services.Wrap(services.ErrConfiguration, "generation", op, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Asset{}, classifySendError("generation", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Asset{}, c.classifyStatus(op, resp)
	}

	var answer assetResponse
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return Asset{}, services.Wrap(services.ErrTransient, "generation", op, "decode response", err)
	}
	format := strings.TrimSpace(answer.Format)
	if format == "" {
		format = defaultFormat
	}

	ref, err := c.store(ctx, op, answer, format)
	if err != nil {
		return Asset{}, err
	}
	c.logger.DebugContext(ctx, "generation call completed",
		logging.String("operation", op),
		logging.String("asset_ref", ref),
		logging.Duration("elapsed", time.Since(started)),
	)
	return Asset{Ref: ref, Format: format, DurationSeconds: answer.DurationSeconds}, nil
}

// store persists the asset content from whichever channel the backend chose.
func (c *Client) store(ctx context.Context, op string, answer assetResponse, format string) (string, error) {
	switch {
	case answer.URL != "":
		return c.download(ctx, op, answer.URL, format)
	case answer.Data != "":
		data, err := base64.StdEncoding.DecodeString(answer.Data)
		if err != nil {
			return "", services.Wrap(services.ErrTransient, "generation", op, "decode inline content", err)
		}
		ref, err := c.cache.WriteBytes(ctx, data, format)
		if err != nil {
			return "", services.Wrap(services.ErrTransient, "generation", op, "store asset", err)
		}
		return ref, nil
	default:
		return "", services.Wrap(services.ErrTransient, "generation", op, "response carried neither url nor data", nil)
	}
}

func (c *Client) download(ctx context.Context, op, url, format string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "generation", op, "build download request", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", classifySendError("generation", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", services.Wrap(services.ErrTransient, "generation", op,
			fmt.Sprintf("asset download returned status %d", resp.StatusCode), nil)
	}
	ref, err := c.cache.Write(ctx, resp.Body, format)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "generation", op, "store asset", err)
	}
	return ref, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// classifyStatus maps backend status codes onto scheduler error kinds.
func (c *Client) classifyStatus(op string, resp *http.Response) error {
	snippet := readSnippet(resp.Body)
	detail := fmt.Sprintf("backend returned status %d", resp.StatusCode)
	if snippet != "" {
		detail += ": " + snippet
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if after := strings.TrimSpace(resp.Header.Get("Retry-After")); after != "" {
			detail += " (retry after " + after + "s)"
		}
		return services.Wrap(services.ErrRateLimited, "generation", op, detail, nil)
	case resp.StatusCode == http.StatusRequestTimeout:
		return services.Wrap(services.ErrTimeout, "generation", op, detail, nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "generation", op, detail, nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return services.Wrap(services.ErrInvalidRequest, "generation", op, detail, nil)
	default:
		return services.Wrap(services.ErrTransient, "generation", op, detail, nil)
	}
}

func classifySendError(component, op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, component, op, "request deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		// Run cancellation, not a backend fault. The marker keeps the job
		// retryable on resume and the cause stays in the chain.
		return services.Wrap(services.ErrTransient, component, op, "request canceled", err)
	default:
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return services.Wrap(services.ErrTimeout, component, op, "request timed out", err)
		}
		return services.Wrap(services.ErrTransient, component, op, "request failed", err)
	}
}

func readSnippet(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	var payload errorResponse
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}
