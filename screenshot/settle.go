package screenshot

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// PollPolicy is a constant-interval bounded poll
type PollPolicy struct {
	Attempts int
	Interval time.Duration
}

// MapLoadPolicy waits up to 32s for a map canvas to show up
var MapLoadPolicy = PollPolicy{Attempts: 16, Interval: 2 * time.Second}

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Settler absorbs asynchronous rendering before geometry is measured. Every
// wait is bounded and gives up without failing the caller.
type Settler struct {
	surface Surface
	log     logrus.FieldLogger
	sleep   SleepFunc
}

// NewSettler creates a Settler. A nil sleep uses Sleep.
func NewSettler(s Surface, log logrus.FieldLogger, sleep SleepFunc) *Settler {
	if sleep == nil {
		sleep = Sleep
	}
	return &Settler{surface: s, log: log, sleep: sleep}
}

// Pause sleeps for a fixed duration
func (w *Settler) Pause(ctx context.Context, d time.Duration) error {
	return w.sleep(ctx, d)
}

// NetworkIdle waits for the network to go quiet. A timeout is logged and
// reported as false; only context cancellation is returned as an error.
func (w *Settler) NetworkIdle(ctx context.Context, timeout time.Duration) (bool, error) {
	err := w.surface.WaitNetworkIdle(ctx, timeout)
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, ErrSettleTimeout):
		w.log.WithField("timeout", timeout).Warn("network did not go idle, continuing")
	default:
		w.log.WithError(err).Warn("network idle wait failed, continuing")
	}
	return false, nil
}

// Poll checks for any of markers every policy.Interval, at most
// policy.Attempts times. It returns the marker that appeared, or ok=false after
// the attempts are exhausted.
func (w *Settler) Poll(ctx context.Context, markers []Selector, policy PollPolicy) (Selector, bool, error) {
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		for _, sel := range markers {
			found, err := w.surface.Find(ctx, sel)
			if err != nil {
				if ctx.Err() != nil {
					return Selector{}, false, ctx.Err()
				}
				w.log.WithError(err).WithField("selector", sel.String()).Debug("marker lookup failed")
				continue
			}
			if len(found) > 0 {
				w.log.WithFields(logrus.Fields{
					"selector": sel.String(),
					"matches":  len(found),
					"attempt":  attempt,
				}).Info("marker appeared")
				return sel, true, nil
			}
		}
		if attempt == policy.Attempts {
			break
		}
		w.log.WithField("attempt", attempt).Debugf("waiting for marker (%d/%d)", attempt, policy.Attempts)
		if err := w.sleep(ctx, policy.Interval); err != nil {
			return Selector{}, false, err
		}
	}
	w.log.WithField("attempts", policy.Attempts).Warn("marker did not appear, continuing")
	return Selector{}, false, nil
}
