package influx

import (
	"context"
	"crypto/tls"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// WriterConfig describes the backend endpoint and credentials.
type WriterConfig struct {
	URL      string
	Database string
	Username string
	Password string

	// client certificate authentication, both or neither
	TLSCertificate string
	TLSKey         string

	// Timeout bounds a single write attempt.
	Timeout time.Duration
}

// Writer performs authenticated line protocol writes.
type Writer struct {
	client   *resty.Client
	database string
	logger   logrus.FieldLogger
}

// NewWriter validates cfg and loads the client certificate, if any. Malformed
// TLS material is reported here rather than on the first write.
func NewWriter(cfg WriterConfig, logger logrus.FieldLogger) (*Writer, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid influxdb url %q", cfg.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid influxdb url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.Errorf("influxdb url %q has no host", cfg.URL)
	}
	if cfg.Database == "" {
		return nil, errors.New("influxdb database must be set")
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.URL, "/")).
		SetHeader("Content-Type", "text/plain; charset=utf-8")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.Username != "" || cfg.Password != "" {
		client.SetBasicAuth(cfg.Username, cfg.Password)
	}

	if cfg.TLSCertificate != "" || cfg.TLSKey != "" {
		if cfg.TLSCertificate == "" || cfg.TLSKey == "" {
			return nil, errors.New("tls certificate and key must both be set to use client certificate authentication")
		}
		if u.Scheme != "https" {
			return nil, errors.New("client certificate authentication requires an https url")
		}
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertificate, cfg.TLSKey)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load tls client certificate")
		}
		client.SetCertificates(cert)
	}

	return &Writer{
		client:   client,
		database: cfg.Database,
		logger: logger.WithFields(logrus.Fields{
			"url":      u.Redacted(),
			"database": cfg.Database,
		}),
	}, nil
}

// Client exposes the underlying HTTP client, mainly to adjust TLS trust.
func (w *Writer) Client() *resty.Client {
	return w.client
}

// Write sends body in a single attempt. Every failure is a *PublishError.
func (w *Writer) Write(ctx context.Context, body []byte) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"db":        w.database,
			"precision": "ms",
		}).
		SetBody(body).
		Post("/write")
	if err != nil {
		return &PublishError{Kind: Transient, Err: err}
	}
	if resp.IsSuccess() {
		w.logger.Debugf("wrote %d bytes, status %d", len(body), resp.StatusCode())
		return nil
	}

	msg := strings.TrimSpace(resp.String())
	if msg == "" {
		msg = resp.Status()
	}
	return &PublishError{
		Kind:   Classify(resp.StatusCode()),
		Status: resp.StatusCode(),
		Err:    errors.New(msg),
	}
}
