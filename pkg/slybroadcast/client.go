// Package slybroadcast provides a client for the Slybroadcast ringless
// voicemail gateway.
package slybroadcast

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pestline/pestline/internal/resilience"
)

// DefaultBaseURL is the production gateway.
const DefaultBaseURL = "https://www.mobile-sphere.com/gateway"

// ErrDuplicate is returned when the gateway rejects a drop as a repeat of a
// recent one.
var ErrDuplicate = eris.New("slybroadcast: duplicate request")

// Client defines the Slybroadcast gateway operations.
type Client interface {
	// Send queues one voicemail drop.
	Send(ctx context.Context, d Drop) (*Result, error)
	// AudioFiles lists the audio files recorded on the account.
	AudioFiles(ctx context.Context) ([]AudioFile, error)
}

// Drop is a single voicemail drop request.
type Drop struct {
	Phone     string // 10 digit US number
	AudioFile string // name of an audio file on the account
	AudioURL  string // alternative to AudioFile
	CallerID  string
	Date      string // "YYYY-MM-DD HH:MM:SS" Eastern time
	Comments  string
}

// Result is a queued drop.
type Result struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Raw       string `json:"-"`
}

// AudioFile is an audio file stored on the account.
type AudioFile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Duration    string `json:"duration,omitempty"`
	CreatedDate string `json:"created_date,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom gateway URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps outbound requests per second. Zero or less disables it.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(c *httpClient) { c.log = l }
}

type httpClient struct {
	uid      string
	password string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
	log      *zap.Logger
}

// NewClient creates a Slybroadcast client for the given account.
func NewClient(uid, password string, opts ...Option) Client {
	c := &httpClient{
		uid:      uid,
		password: password,
		baseURL:  DefaultBaseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(2), 1),
		retry:    resilience.DefaultRetryConfig(),
		log:      zap.L(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger(c.log, "slybroadcast", "post")
	}
	c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     time.Minute,
		ShouldTrip:       resilience.IsTransient,
		OnStateChange: func(from, to resilience.CircuitState) {
			c.log.Warn("slybroadcast: circuit state change",
				zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
	return c
}

// post sends a form-encoded request and returns the body of a 2xx response.
func (c *httpClient) post(ctx context.Context, path string, form url.Values) (string, error) {
	form.Set("c_uid", c.uid)
	form.Set("c_password", c.password)
	encoded := form.Encode()

	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (string, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (string, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", eris.Wrap(err, "slybroadcast: rate limit wait")
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(encoded))
			if err != nil {
				return "", eris.Wrap(err, "slybroadcast: create request")
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			resp, err := c.http.Do(req)
			if err != nil {
				return "", eris.Wrap(err, "slybroadcast: request failed")
			}
			defer resp.Body.Close() //nolint:errcheck

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return "", eris.Wrap(err, "slybroadcast: read response body")
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return "", resilience.ForStatus(
					eris.Errorf("slybroadcast: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
					resp.StatusCode)
			}
			return string(body), nil
		})
	})
}

func (c *httpClient) Send(ctx context.Context, d Drop) (*Result, error) {
	if d.Phone == "" {
		return nil, eris.New("slybroadcast: phone is required")
	}
	if d.AudioFile == "" && d.AudioURL == "" {
		return nil, eris.New("slybroadcast: audio file or audio url is required")
	}

	form := url.Values{}
	form.Set("c_phone", d.Phone)
	setIf(form, "c_record_audio", d.AudioFile)
	setIf(form, "c_url", d.AudioURL)
	setIf(form, "c_callerID", d.CallerID)
	setIf(form, "c_date", d.Date)
	setIf(form, "c_comments", d.Comments)

	body, err := c.post(ctx, "/vmb.php", form)
	if err != nil {
		return nil, err
	}
	return parseSendResponse(body)
}

func (c *httpClient) AudioFiles(ctx context.Context) ([]AudioFile, error) {
	form := url.Values{}
	form.Set("c_method", "get_audio_list")
	body, err := c.post(ctx, "/vmb.aflist.php", form)
	if err != nil {
		return nil, err
	}
	return parseAudioList(body)
}

func setIf(form url.Values, key, val string) {
	if val != "" {
		form.Set(key, val)
	}
}

var sessionIDPattern = regexp.MustCompile(`session_id=(\w+)`)

// parseSendResponse accepts the gateway's JSON or plain text replies.
func parseSendResponse(body string) (*Result, error) {
	var js struct {
		Success   *bool  `json:"success"`
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &js); err == nil {
		if (js.Success != nil && !*js.Success) || js.Error != "" {
			if strings.Contains(strings.ToLower(js.Error+js.Message), "duplicate") {
				return nil, ErrDuplicate
			}
			return nil, eris.Errorf("slybroadcast: rejected: %s", firstNonEmpty(js.Error, js.Message, body))
		}
		return &Result{
			SessionID: js.SessionID,
			Message:   firstNonEmpty(js.Message, "Voicemail drop queued successfully"),
			Raw:       body,
		}, nil
	}

	lower := strings.ToLower(strings.TrimSpace(body))
	if strings.Contains(lower, "duplicate") {
		return nil, ErrDuplicate
	}
	if strings.HasPrefix(lower, "ok") || strings.Contains(lower, "success") || strings.Contains(lower, "queued") {
		res := &Result{Message: "Voicemail drop queued successfully", Raw: body}
		if m := sessionIDPattern.FindStringSubmatch(body); m != nil {
			res.SessionID = m[1]
		}
		return res, nil
	}
	return nil, eris.Errorf("slybroadcast: unexpected response: %s", strings.TrimSpace(body))
}

// parseAudioList accepts a JSON list or pipe-delimited lines of
// "file"|"display name"|"date".
func parseAudioList(body string) ([]AudioFile, error) {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var wrapped struct {
			Files []AudioFile `json:"files"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil && wrapped.Files != nil {
			return wrapped.Files, nil
		}
		var list []AudioFile
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil, eris.Wrap(err, "slybroadcast: unmarshal audio list")
		}
		return list, nil
	}

	var files []AudioFile
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(strings.ToLower(line), "error") {
			continue
		}
		parts := strings.Split(line, "|")
		for i := range parts {
			parts[i] = strings.TrimSpace(strings.ReplaceAll(parts[i], `"`, ""))
		}
		if parts[0] == "" {
			continue
		}
		f := AudioFile{ID: parts[0], Name: parts[0]}
		if len(parts) > 1 && parts[1] != "" {
			f.Name = parts[1]
		}
		if len(parts) > 2 {
			f.CreatedDate = parts[2]
		}
		files = append(files, f)
	}
	return files, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
