// Package voicemail sends ringless voicemail drops to leads, at most one per
// phone number per throttle window.
package voicemail

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // America/New_York on hosts without zoneinfo

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pestline/pestline/internal/throttle"
	"github.com/pestline/pestline/pkg/slybroadcast"
)

// DateLayout is the vendor's schedule format, in Eastern time.
const DateLayout = "2006-01-02 15:04:05"

var (
	ErrDisabled      = eris.New("voicemail: integration is disabled")
	ErrNotConfigured = eris.New("voicemail: credentials not configured")
	ErrInvalidInput  = eris.New("voicemail: invalid request")
	ErrInvalidPhone  = eris.New("voicemail: invalid phone number")
	ErrNoAudioFile   = eris.New("voicemail: no audio file specified and no default configured")
	ErrThrottled     = eris.New("voicemail: throttled")
)

// ThrottledError reports how long the caller must wait before the same
// number can be dialled again. It matches ErrThrottled with errors.Is.
type ThrottledError struct {
	Phone      string
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("voicemail: %s throttled, retry after %s", maskPhone(e.Phone), e.RetryAfter)
}

func (e *ThrottledError) Is(target error) bool { return target == ErrThrottled }

// Request is a single voicemail drop.
type Request struct {
	Phone        string `json:"phone" validate:"required"`
	Name         string `json:"name" validate:"required,max=200"`
	PestType     string `json:"pest_type,omitempty" validate:"max=100"`
	AudioFile    string `json:"audio_file,omitempty"`
	CallerID     string `json:"caller_id,omitempty"`
	LeadID       string `json:"lead_id,omitempty"`
	DelayMinutes int    `json:"delay_minutes,omitempty" validate:"gte=0,lte=10080"`
	RequestID    string `json:"request_id,omitempty"`
}

// Response describes a queued drop.
type Response struct {
	SessionID    string `json:"session_id,omitempty"`
	Message      string `json:"message"`
	RequestID    string `json:"request_id"`
	Phone        string `json:"phone"`
	ScheduledFor string `json:"scheduled_for"`
}

// Status summarizes the integration's configuration.
type Status struct {
	Enabled         bool `json:"enabled"`
	Configured      bool `json:"configured"`
	HasDefaultAudio bool `json:"has_default_audio"`
}

// Settings configures a Service.
type Settings struct {
	Enabled          bool
	Configured       bool // vendor credentials present
	DefaultAudioFile string
	DefaultCallerID  string
	Interval         time.Duration // minimum gap between drops to one number
}

// LeadNotes records drop outcomes on the lead.
type LeadNotes interface {
	AppendLeadComment(ctx context.Context, leadID, note string) error
}

// Service sends voicemail drops.
type Service struct {
	client   slybroadcast.Client
	throttle throttle.Throttle
	leads    LeadNotes
	settings Settings
	validate *validator.Validate
	eastern  *time.Location
	now      func() time.Time
	log      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLeadNotes enables appending a note to the lead after a successful drop.
func WithLeadNotes(l LeadNotes) Option {
	return func(s *Service) { s.leads = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a Service. client may be nil when the integration is
// disabled.
func NewService(client slybroadcast.Client, th throttle.Throttle, settings Settings, opts ...Option) (*Service, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, eris.Wrap(err, "voicemail: load eastern time zone")
	}
	if settings.Interval <= 0 {
		settings.Interval = 30 * time.Second
	}
	s := &Service{
		client:   client,
		throttle: th,
		settings: settings,
		validate: validator.New(),
		eastern:  loc,
		now:      time.Now,
		log:      zap.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Status reports whether drops can be sent.
func (s *Service) Status() Status {
	return Status{
		Enabled:         s.settings.Enabled,
		Configured:      s.settings.Configured,
		HasDefaultAudio: s.settings.DefaultAudioFile != "",
	}
}

// Validate checks the request's required fields.
func (s *Service) Validate(req Request) error {
	if err := s.validate.Struct(req); err != nil {
		return eris.Wrapf(ErrInvalidInput, "%v", err)
	}
	return nil
}

// Send validates, throttles and queues one drop.
func (s *Service) Send(ctx context.Context, req Request) (*Response, error) {
	if !s.settings.Enabled {
		return nil, ErrDisabled
	}
	if !s.settings.Configured || s.client == nil {
		return nil, ErrNotConfigured
	}
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	phone, ok := NormalizePhone(req.Phone)
	if !ok {
		return nil, ErrInvalidPhone
	}

	log := s.log.With(zap.String("phone", maskPhone(phone)))

	allowed, retryAfter, err := s.throttle.Acquire(ctx, "voicemail:"+phone, s.settings.Interval)
	if err != nil {
		return nil, eris.Wrap(err, "voicemail: acquire throttle")
	}
	if !allowed {
		log.Info("voicemail: throttled", zap.Duration("retry_after", retryAfter))
		return nil, &ThrottledError{Phone: phone, RetryAfter: retryAfter}
	}

	audio := req.AudioFile
	if audio == "" {
		audio = s.settings.DefaultAudioFile
	}
	if audio == "" {
		return nil, ErrNoAudioFile
	}

	sendAt := s.now()
	if req.DelayMinutes > 0 {
		sendAt = sendAt.Add(time.Duration(req.DelayMinutes) * time.Minute)
	}
	scheduled := sendAt.In(s.eastern).Format(DateLayout)

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	callerID := req.CallerID
	if callerID == "" {
		callerID = s.settings.DefaultCallerID
	}

	res, err := s.client.Send(ctx, slybroadcast.Drop{
		Phone:     phone,
		AudioFile: audio,
		CallerID:  callerID,
		Date:      scheduled,
		Comments:  Comment(req.Name, requestID, req.PestType),
	})
	if err != nil {
		log.Warn("voicemail: send failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, eris.Wrapf(err, "voicemail: send %s", requestID)
	}

	log.Info("voicemail: queued",
		zap.String("request_id", requestID),
		zap.String("session_id", res.SessionID),
		zap.String("scheduled_for", scheduled),
	)

	if req.LeadID != "" && s.leads != nil {
		note := fmt.Sprintf("Voicemail Drop: Sent successfully (Session: %s) at %s ET", sessionOrNA(res.SessionID), scheduled)
		if err := s.leads.AppendLeadComment(ctx, req.LeadID, note); err != nil {
			log.Warn("voicemail: append lead note failed", zap.String("lead_id", req.LeadID), zap.Error(err))
		}
	}

	return &Response{
		SessionID:    res.SessionID,
		Message:      res.Message,
		RequestID:    requestID,
		Phone:        phone,
		ScheduledFor: scheduled,
	}, nil
}

// NormalizePhone reduces a US number to its 10 digits. An 11 digit number
// must start with the country code 1.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 10:
		return digits, true
	case len(digits) == 11 && digits[0] == '1':
		return digits[1:], true
	default:
		return "", false
	}
}

// Comment builds the vendor comment. The request id keeps otherwise
// identical drops from being rejected as duplicates.
func Comment(name, requestID, pestType string) string {
	c := name + " - " + requestID
	if pestType != "" {
		c += " - " + pestType
	}
	return c
}

func maskPhone(p string) string {
	if len(p) <= 4 {
		return p
	}
	return strings.Repeat("*", len(p)-4) + p[len(p)-4:]
}

func sessionOrNA(id string) string {
	if id == "" {
		return "N/A"
	}
	return id
}
