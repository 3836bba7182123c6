package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"trawler/internal/match"
)

const (
	defaultBaseURL        = "https://api.steampowered.com"
	defaultBatchSize      = 100
	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryAttempts  = 5
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second

	historyBySeqPath = "/IDOTA2Match_570/GetMatchHistoryBySequenceNum/v1/"
	historyPath      = "/IDOTA2Match_570/GetMatchHistory/v1/"
)

// ErrUnavailable marks a discovery request that could not be completed: the
// service was unreachable, kept failing through the retry budget, refused the
// API key, or answered with a body that could not be decoded. Callers pause
// and retry later; the failure never masquerades as an empty batch.
var ErrUnavailable = errors.New("steam: service unavailable")

// Limiter gates outbound requests. Acquire blocks until the caller may send.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Config captures the runtime settings required to talk to the Steam Web API.
type Config struct {
	APIKey         string
	BaseURL        string
	BatchSize      int
	TimeoutSeconds int
	MaxAttempts    int
}

// Client wraps the Steam Web API match history endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    Limiter

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a Steam client using the supplied configuration.
func NewClient(cfg Config, limiter Limiter, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	attempts := defaultRetryAttempts
	if cfg.MaxAttempts > 0 {
		attempts = cfg.MaxAttempts
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			BatchSize:      cfg.BatchSize,
			TimeoutSeconds: cfg.TimeoutSeconds,
			MaxAttempts:    cfg.MaxAttempts,
		},
		httpClient:       &http.Client{Timeout: timeout},
		limiter:          limiter,
		retryMaxAttempts: attempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.BatchSize <= 0 {
		client.cfg.BatchSize = defaultBatchSize
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

type historyEnvelope struct {
	Result struct {
		Status  int            `json:"status"`
		Matches []historyMatch `json:"matches"`
	} `json:"result"`
}

type historyMatch struct {
	MatchID      int64             `json:"match_id"`
	SeqNum       int64             `json:"match_seq_num"`
	GameMode     int               `json:"game_mode"`
	LobbyType    int               `json:"lobby_type"`
	HumanPlayers int               `json:"human_players"`
	Players      []json.RawMessage `json:"players"`
}

// ListSince returns candidates with sequence numbers strictly greater than
// seq, ascending, at most one configured batch. An empty slice means the
// global sequence has nothing newer yet.
func (c *Client) ListSince(ctx context.Context, seq int64) ([]match.Candidate, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key required", ErrUnavailable)
	}
	if seq < 0 {
		return nil, fmt.Errorf("%w: negative sequence number %d", ErrUnavailable, seq)
	}

	params := url.Values{}
	params.Set("key", c.cfg.APIKey)
	params.Set("format", "json")
	params.Set("start_at_match_seq_num", strconv.FormatInt(seq+1, 10))
	params.Set("matches_requested", strconv.Itoa(c.cfg.BatchSize))

	envelope, err := c.getHistoryWithRetry(ctx, historyBySeqPath, params, fmt.Sprintf("list since %d", seq))
	if err != nil {
		return nil, err
	}

	candidates := make([]match.Candidate, 0, len(envelope.Result.Matches))
	for _, m := range envelope.Result.Matches {
		if m.SeqNum <= seq {
			continue
		}
		players := m.HumanPlayers
		if players == 0 {
			players = len(m.Players)
		}
		candidates = append(candidates, match.Candidate{
			MatchID:   m.MatchID,
			SeqNum:    m.SeqNum,
			GameMode:  m.GameMode,
			LobbyType: m.LobbyType,
			Players:   players,
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].SeqNum < candidates[j].SeqNum })
	return candidates, nil
}

// MostRecentSeqNum resolves the newest match sequence position, used to
// anchor a fresh cursor at "now".
func (c *Client) MostRecentSeqNum(ctx context.Context) (int64, error) {
	if c.cfg.APIKey == "" {
		return 0, fmt.Errorf("%w: api key required", ErrUnavailable)
	}

	params := url.Values{}
	params.Set("key", c.cfg.APIKey)
	params.Set("format", "json")
	params.Set("matches_requested", "1")

	envelope, err := c.getHistoryWithRetry(ctx, historyPath, params, "most recent seq num")
	if err != nil {
		return 0, err
	}
	if len(envelope.Result.Matches) == 0 {
		return 0, fmt.Errorf("%w: match history returned no matches", ErrUnavailable)
	}
	var newest int64
	for _, m := range envelope.Result.Matches {
		if m.SeqNum > newest {
			newest = m.SeqNum
		}
	}
	if newest <= 0 {
		return 0, fmt.Errorf("%w: match history carried no sequence number", ErrUnavailable)
	}
	return newest, nil
}

func (c *Client) getHistoryWithRetry(ctx context.Context, path string, params url.Values, op string) (historyEnvelope, error) {
	var (
		envelope historyEnvelope
		lastErr  error
	)
	attempts := c.retryAttempts()

	for attempt := 1; attempt <= attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx); err != nil {
				return envelope, err
			}
		}

		envelope, lastErr = c.getHistoryOnce(ctx, path, params)
		if lastErr == nil {
			return envelope, nil
		}

		delay, retry := c.retryDelay(ctx, lastErr, attempt, attempts)
		if !retry {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return envelope, err
		}
	}

	if err := ctx.Err(); err != nil {
		return envelope, err
	}
	var statusErr *httpStatusError
	if errors.As(lastErr, &statusErr) && (statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden) {
		return envelope, fmt.Errorf("%w: invalid api key (http %d)", ErrUnavailable, statusErr.StatusCode)
	}
	return envelope, fmt.Errorf("%w: %s: %v", ErrUnavailable, op, lastErr)
}

func (c *Client) getHistoryOnce(ctx context.Context, path string, params url.Values) (historyEnvelope, error) {
	var envelope historyEnvelope

	endpoint := c.cfg.BaseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return envelope, fmt.Errorf("new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return envelope, fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return envelope, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return envelope, fmt.Errorf("decode response: %w", err)
	}
	if envelope.Result.Status != 1 {
		return envelope, fmt.Errorf("api status %d", envelope.Result.Status)
	}
	return envelope, nil
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

func (c *Client) retryAttempts() int {
	if c == nil || c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil {
		return 0, false
	}
	if ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			// Auth failures and other 4xx responses do not improve on retry.
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.backoffDelay(attempt), true
	}

	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	if base < 0 {
		base = defaultRetryBaseDelay
	}
	if base == 0 {
		return 0
	}
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}

	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
