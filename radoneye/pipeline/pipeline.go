// Package pipeline drives readings from the device into the backend.
package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alepar/radoneye/radoneye"
	"github.com/alepar/radoneye/radoneye/influx"
)

// Source yields readings until ctx is done. *stream.Stream implements it.
type Source interface {
	Next(ctx context.Context) (radoneye.Reading, error)
}

// Sink publishes one reading. *influx.Publisher implements it.
type Sink interface {
	Publish(ctx context.Context, r radoneye.Reading) error
}

// Run publishes every reading of src to sink, one at a time, until ctx is
// done (nil is returned) or sink reports a fatal failure (that error is
// returned). Dropped points are logged by the sink and skipped.
func Run(ctx context.Context, src Source, sink Sink, logger logrus.FieldLogger) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	published := 0
	for {
		reading, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.WithField("published", published).Info("pipeline stopped")
				return nil
			}
			return errors.Wrap(err, "reading stream failed")
		}
		logger.WithFields(logrus.Fields(reading.Values())).Debug("received reading")

		err = sink.Publish(ctx, reading)
		switch {
		case err == nil:
			published++
		case ctx.Err() != nil:
			logger.WithField("published", published).Info("pipeline stopped")
			return nil
		case influx.IsFatal(err):
			return err
		}
	}
}
