package influx

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alepar/radoneye/radoneye"
)

// PointWriter performs one write attempt.
type PointWriter interface {
	Write(ctx context.Context, body []byte) error
}

// Observer is told about the outcome of every publish.
type Observer interface {
	ObservePublishAttempt()
	ObservePointWritten()
	ObservePointDropped(reason string)
}

type nopObserver struct{}

func (nopObserver) ObservePublishAttempt()     {}
func (nopObserver) ObservePointWritten()       {}
func (nopObserver) ObservePointDropped(string) {}

// Reasons passed to Observer.ObservePointDropped.
const (
	DropRetriesExhausted = "retries_exhausted"
	DropRejected         = "rejected"
	DropFatal            = "fatal"
)

// Retry bounds how hard a single point is pushed before it is dropped.
type Retry struct {
	// Attempts includes the first try.
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetry tries a point five times, waiting 1s up to 10s in between.
func DefaultRetry() Retry {
	return Retry{
		Attempts:        5,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
	}
}

func (r Retry) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	b.MaxInterval = r.MaxInterval
	b.MaxElapsedTime = 0

	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	Measurement string
	Tags        map[string]string
	Exclude     []radoneye.Field
	Retry       Retry
	Observer    Observer
}

// Publisher turns readings into points and writes them one at a time.
type Publisher struct {
	writer   PointWriter
	opts     PublisherOptions
	logger   logrus.FieldLogger
	observer Observer

	mu   sync.Mutex
	tags map[string]string
}

func NewPublisher(w PointWriter, opts PublisherOptions, logger logrus.FieldLogger) *Publisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Measurement == "" {
		opts.Measurement = DefaultMeasurement
	}
	if opts.Retry == (Retry{}) {
		opts.Retry = DefaultRetry()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Publisher{
		writer:   w,
		opts:     opts,
		logger:   logger,
		observer: observer,
		tags:     opts.Tags,
	}
}

// SetTags replaces the tags attached to subsequent points.
func (p *Publisher) SetTags(tags map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tags = tags
}

// Point returns the point Publish would write for r.
func (p *Publisher) Point(r radoneye.Reading) Point {
	p.mu.Lock()
	tags := p.tags
	p.mu.Unlock()
	return ExportPoint(r, p.opts.Measurement, tags, p.opts.Exclude)
}

// Publish writes r, retrying transient failures with backoff. Once the retries
// are exhausted the point is dropped and a Transient *PublishError returned;
// it is never queued again. Rejected and Fatal failures are not retried. When
// ctx is done ctx.Err() is returned.
func (p *Publisher) Publish(ctx context.Context, r radoneye.Reading) error {
	body, err := Encode(p.Point(r))
	if err != nil {
		p.observer.ObservePointDropped(DropRejected)
		return &PublishError{Kind: Rejected, Err: err}
	}

	attempt := 0
	op := func() error {
		attempt++
		p.observer.ObservePublishAttempt()
		err := p.writer.Write(ctx, body)
		if err == nil {
			return nil
		}
		var pe *PublishError
		if errors.As(err, &pe) && pe.Kind != Transient {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": d,
		}).Warn("failed to write to influxdb, retrying")
	}

	err = backoff.RetryNotify(op, p.opts.Retry.backOff(ctx), notify)
	if err == nil {
		p.observer.ObservePointWritten()
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var pe *PublishError
	if !errors.As(err, &pe) {
		pe = &PublishError{Kind: Transient, Err: err}
	}
	entry := p.logger.WithError(pe).WithField("attempts", attempt)
	switch pe.Kind {
	case Fatal:
		p.observer.ObservePointDropped(DropFatal)
		entry.Error("influxdb refused the write")
	case Rejected:
		p.observer.ObservePointDropped(DropRejected)
		entry.Warn("influxdb rejected the point, dropping it")
	default:
		p.observer.ObservePointDropped(DropRetriesExhausted)
		entry.Error("failed to write to influxdb, dropping point")
	}
	return pe
}
