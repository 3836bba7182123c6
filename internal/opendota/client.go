package opendota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trawler/internal/match"
)

const (
	defaultBaseURL        = "https://api.opendota.com/api"
	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryAttempts  = 5
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 60 * time.Second
)

var (
	// ErrMatchNotFound reports that OpenDota has not indexed the match yet.
	// The caller defers the match and retries it on a later cycle.
	ErrMatchNotFound = errors.New("opendota: match not found")

	// ErrMatchUnavailable reports that the match detail could not be
	// fetched and will not become fetchable by waiting: a malformed payload,
	// a non-recoverable response, or a transient failure that outlived the
	// retry budget.
	ErrMatchUnavailable = errors.New("opendota: match unavailable")
)

// Limiter gates outbound requests. Acquire blocks until the caller may send.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Config captures the runtime settings required to talk to OpenDota.
type Config struct {
	BaseURL        string
	TimeoutSeconds int
	MaxAttempts    int
}

// Client wraps the OpenDota match detail endpoint.
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

// NewClient constructs an OpenDota client using the supplied configuration.
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
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
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
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

type matchPayload struct {
	MatchID      int64           `json:"match_id"`
	SeqNum       int64           `json:"match_seq_num"`
	GameMode     int             `json:"game_mode"`
	LobbyType    int             `json:"lobby_type"`
	HumanPlayers int             `json:"human_players"`
	RadiantWin   *bool           `json:"radiant_win"`
	StartTime    int64           `json:"start_time"`
	Duration     int             `json:"duration"`
	RadiantScore int             `json:"radiant_score"`
	DireScore    int             `json:"dire_score"`
	Region       int             `json:"region"`
	Cluster      int             `json:"cluster"`
	ReplaySalt   int64           `json:"replay_salt"`
	PicksBans    []draftPayload  `json:"picks_bans"`
	Players      []playerPayload `json:"players"`
}

type draftPayload struct {
	IsPick bool `json:"is_pick"`
	HeroID int  `json:"hero_id"`
	Team   int  `json:"team"`
	Order  int  `json:"order"`
}

type playerPayload struct {
	LeaverStatus *int `json:"leaver_status"`
}

// Fetch retrieves the full detail for one match. The raw response body is
// retained on the returned detail for downstream consumers.
func (c *Client) Fetch(ctx context.Context, matchID int64) (*match.Detail, error) {
	if matchID <= 0 {
		return nil, fmt.Errorf("%w: non-positive match id %d", ErrMatchUnavailable, matchID)
	}

	endpoint := fmt.Sprintf("%s/matches/%d", c.cfg.BaseURL, matchID)
	attempts := c.retryAttempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx); err != nil {
				return nil, err
			}
		}

		body, err := c.fetchOnce(ctx, endpoint)
		if err == nil {
			return decodeDetail(matchID, body)
		}
		if errors.Is(err, ErrMatchNotFound) {
			return nil, err
		}
		lastErr = err

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			break
		}
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: match %d: %v", ErrMatchUnavailable, matchID, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrMatchNotFound
	}
	if resp.StatusCode != http.StatusOK {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	return body, nil
}

func decodeDetail(matchID int64, body []byte) (*match.Detail, error) {
	var payload matchPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: match %d: decode response: %v", ErrMatchUnavailable, matchID, err)
	}
	if payload.MatchID == 0 || payload.RadiantWin == nil {
		return nil, fmt.Errorf("%w: match %d: response missing required fields", ErrMatchUnavailable, matchID)
	}

	winner := match.TeamDire
	if *payload.RadiantWin {
		winner = match.TeamRadiant
	}

	leavers := 0
	for _, p := range payload.Players {
		// A missing leaver_status is treated as a leaver, matching the
		// strictness of the upstream data contract.
		if p.LeaverStatus == nil || *p.LeaverStatus > 1 {
			leavers++
		}
	}

	draft := make([]match.DraftEntry, 0, len(payload.PicksBans))
	for _, entry := range payload.PicksBans {
		team := match.TeamRadiant
		if entry.Team == 1 {
			team = match.TeamDire
		}
		draft = append(draft, match.DraftEntry{
			HeroID: entry.HeroID,
			Team:   team,
			IsPick: entry.IsPick,
			Order:  entry.Order,
		})
	}

	return &match.Detail{
		MatchID:      payload.MatchID,
		SeqNum:       payload.SeqNum,
		GameMode:     payload.GameMode,
		LobbyType:    payload.LobbyType,
		HumanPlayers: payload.HumanPlayers,
		Leavers:      leavers,
		Winner:       winner,
		Draft:        draft,
		StartTime:    payload.StartTime,
		Duration:     payload.Duration,
		RadiantScore: payload.RadiantScore,
		DireScore:    payload.DireScore,
		Region:       payload.Region,
		Cluster:      payload.Cluster,
		ReplaySalt:   payload.ReplaySalt,
		RawPayload:   body,
	}, nil
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
