package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alepar/radoneye/radoneye"
)

// DiscoverOptions controls device selection.
type DiscoverOptions struct {
	Adapter string

	// Address skips the scan when set.
	Address string

	ScanTimeout time.Duration
}

// Discover resolves the identity of the RD200 to talk to. With an explicit
// address no scan is performed. Otherwise the first advertiser of the RD200
// service seen before the scan timeout wins.
func Discover(ctx context.Context, t Transport, opts DiscoverOptions, logger logrus.FieldLogger) (radoneye.Identity, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Address != "" {
		return radoneye.Identity{Address: opts.Address, Adapter: opts.Adapter}, nil
	}

	scanCtx, cancel := context.WithTimeout(ctx, opts.ScanTimeout)
	defer cancel()

	var (
		mu    sync.Mutex
		found radoneye.Identity
		ok    bool
	)
	logger.WithFields(logrus.Fields{
		"adapter": opts.Adapter,
		"timeout": opts.ScanTimeout,
	}).Debugf("scanning for devices")
	err := t.Scan(scanCtx, func(a Advertisement) {
		if !a.AdvertisesRD200() {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if ok {
			return
		}
		found = radoneye.Identity{Address: a.Address, Name: a.Name, Adapter: opts.Adapter}
		ok = true
		cancel()
	})

	mu.Lock()
	defer mu.Unlock()
	if ok {
		logger.WithFields(logrus.Fields{
			"address": found.Address,
			"name":    found.Name,
		}).Info("found radoneye rd200")
		return found, nil
	}
	if ctx.Err() != nil {
		return radoneye.Identity{}, ctx.Err()
	}
	switch errors.Cause(err) {
	case nil, context.DeadlineExceeded, context.Canceled:
		return radoneye.Identity{}, radoneye.ErrNotFound
	default:
		return radoneye.Identity{}, &radoneye.ConnectError{
			Kind: radoneye.AdapterUnavailable,
			Err:  errors.Wrap(err, "failed to scan for devices"),
		}
	}
}
