package kaspay

import (
	"github.com/kaspay/kaspay/clock"
	"github.com/kaspay/kaspay/expiry"
	"github.com/kaspay/kaspay/logger"
	"github.com/kaspay/kaspay/metrics"
	"github.com/kaspay/kaspay/renewal"
)

type Option func(*Engine)

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithConfirm installs the asynchronous renewal confirmation channel.
// Without it, auto-renewal always fails closed into an expiry.
func WithConfirm(fn renewal.ConfirmFunc) Option {
	return func(e *Engine) {
		e.confirm = fn
	}
}

// WithOnRemaining receives the display breakdown every expiry tick.
func WithOnRemaining(fn func(expiry.Remaining)) Option {
	return func(e *Engine) {
		e.remain = fn
	}
}

// WithOnExpired is raised exactly once per expiry event.
func WithOnExpired(fn func()) Option {
	return func(e *Engine) {
		e.expired = fn
	}
}
