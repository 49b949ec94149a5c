package sesevents

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // SNS SignatureVersion 1
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pestline/pestline/internal/resilience"
)

// ErrInvalidSignature is returned when a message fails verification for
// any reason, including an untrusted or unreachable certificate.
var ErrInvalidSignature = eris.New("sesevents: invalid signature")

// Verifier checks SNS message signatures against the signing certificate
// named in the message. Certificates are cached per URL.
type Verifier struct {
	http     *http.Client
	retry    resilience.RetryConfig
	maxCerts int
	log      *zap.Logger

	mu    sync.Mutex
	certs map[string]*x509.Certificate
	order []string

	fetch func(ctx context.Context, certURL string) ([]byte, error)
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithCertHTTPClient sets the client used to download certificates.
func WithCertHTTPClient(hc *http.Client) VerifierOption {
	return func(v *Verifier) { v.http = hc }
}

// WithCertCacheSize bounds the number of cached certificates.
func WithCertCacheSize(n int) VerifierOption {
	return func(v *Verifier) {
		if n > 0 {
			v.maxCerts = n
		}
	}
}

// WithVerifierLogger sets the logger. Defaults to zap.L().
func WithVerifierLogger(l *zap.Logger) VerifierOption {
	return func(v *Verifier) { v.log = l }
}

// NewVerifier creates a Verifier.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		http:     &http.Client{Timeout: 10 * time.Second},
		retry:    resilience.DefaultRetryConfig(),
		maxCerts: 16,
		log:      zap.L(),
		certs:    make(map[string]*x509.Certificate),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.retry.OnRetry = resilience.RetryLogger(v.log, "sns", "fetch_cert")
	v.fetch = v.download
	return v
}

// Verify returns nil when env carries a valid signature from an AWS
// certificate.
func (v *Verifier) Verify(ctx context.Context, env *Envelope) error {
	if err := checkAWSURL(env.SigningCertURL); err != nil {
		return eris.Wrapf(ErrInvalidSignature, "signing cert url: %v", err)
	}
	canonical, err := env.StringToSign()
	if err != nil {
		return eris.Wrapf(ErrInvalidSignature, "%v", err)
	}
	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return eris.Wrapf(ErrInvalidSignature, "decode signature: %v", err)
	}

	var (
		hash   crypto.Hash
		digest []byte
	)
	switch env.SignatureVersion {
	case "", "1":
		sum := sha1.Sum([]byte(canonical)) //nolint:gosec
		hash, digest = crypto.SHA1, sum[:]
	case "2":
		sum := sha256.Sum256([]byte(canonical))
		hash, digest = crypto.SHA256, sum[:]
	default:
		return eris.Wrapf(ErrInvalidSignature, "unsupported signature version %q", env.SignatureVersion)
	}

	cert, err := v.cert(ctx, env.SigningCertURL)
	if err != nil {
		return eris.Wrapf(ErrInvalidSignature, "%v", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return eris.Wrap(ErrInvalidSignature, "signing cert is not rsa")
	}
	if err := rsa.VerifyPKCS1v15(pub, hash, digest, sig); err != nil {
		return eris.Wrapf(ErrInvalidSignature, "message %s", env.MessageID)
	}
	return nil
}

func (v *Verifier) cert(ctx context.Context, certURL string) (*x509.Certificate, error) {
	v.mu.Lock()
	c, ok := v.certs[certURL]
	v.mu.Unlock()
	if ok {
		return c, nil
	}

	raw, err := v.fetch(ctx, certURL)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, eris.New("sesevents: signing cert is not pem")
	}
	c, err = x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, eris.Wrap(err, "sesevents: parse signing cert")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.certs[certURL]; !ok {
		if len(v.order) >= v.maxCerts {
			delete(v.certs, v.order[0])
			v.order = v.order[1:]
		}
		v.certs[certURL] = c
		v.order = append(v.order, certURL)
	}
	return c, nil
}

func (v *Verifier) download(ctx context.Context, certURL string) ([]byte, error) {
	return resilience.DoVal(ctx, v.retry, func(ctx context.Context) ([]byte, error) {
		return get(ctx, v.http, certURL)
	})
}

// Confirmer visits SubscribeURL to confirm an SNS subscription.
type Confirmer struct {
	http      *http.Client
	retry     resilience.RetryConfig
	checkHost bool
	log       *zap.Logger
}

// NewConfirmer creates a Confirmer. A nil hc uses a client with a 10s timeout.
func NewConfirmer(hc *http.Client, log *zap.Logger) *Confirmer {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.L()
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger(log, "sns", "confirm_subscription")
	return &Confirmer{http: hc, retry: retry, checkHost: true, log: log}
}

// Confirm confirms the subscription announced by env.
func (c *Confirmer) Confirm(ctx context.Context, env *Envelope) error {
	if env.SubscribeURL == "" {
		return eris.New("sesevents: no SubscribeURL in message")
	}
	if c.checkHost {
		if err := checkAWSURL(env.SubscribeURL); err != nil {
			return eris.Wrap(err, "sesevents: subscribe url")
		}
	}
	err := resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		_, err := get(ctx, c.http, env.SubscribeURL)
		return err
	})
	if err != nil {
		return eris.Wrap(err, "sesevents: confirm subscription")
	}
	c.log.Info("sesevents: subscription confirmed", zap.String("topic_arn", env.TopicArn))
	return nil
}

func get(ctx context.Context, hc *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sesevents: create request")
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "sesevents: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, eris.Wrap(err, "sesevents: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ForStatus(
			eris.Errorf("sesevents: GET %s: status %d", u, resp.StatusCode), resp.StatusCode)
	}
	return body, nil
}

func checkAWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return eris.Wrap(err, "parse")
	}
	if u.Scheme != "https" || !strings.HasSuffix(u.Hostname(), ".amazonaws.com") {
		return eris.Errorf("untrusted url %q", raw)
	}
	return nil
}
