// Package remote builds the HTTP clients used to reach market data providers.
//
// A client chains a disk cache, a circuit breaker and a rate limiter in front of the
// network. Each layer is optional.
package remote

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/etnz/fxfolio/date"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) fxfolio"
)

// ErrCircuitOpen is returned when too many requests to a host failed recently.
var ErrCircuitOpen = errors.New("circuit breaker open")

type options struct {
	timeout   time.Duration
	limit     rate.Limit
	burst     int
	failures  uint32 // consecutive failures opening the breaker, 0 for no breaker
	cooldown  time.Duration
	cacheDir  string
	period    date.Period
	cache     bool
	userAgent string
	base      http.RoundTripper
	log       *zap.SugaredLogger
	today     func() date.Date
}

// Option configures NewClient.
type Option func(*options)

// WithTimeout sets the timeout of a whole request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRateLimit limits outgoing requests to rps per second, with bursts of burst requests.
// A rps of 0 disables the limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.limit = rate.Limit(rps)
		o.burst = max(burst, 1)
	}
}

// WithBreaker opens the circuit after 'failures' consecutive failed requests, for cooldown.
func WithBreaker(failures uint32, cooldown time.Duration) Option {
	return func(o *options) {
		o.failures = failures
		o.cooldown = cooldown
	}
}

// WithCache caches successful GET responses in dir for the current period.
// An empty dir uses a fxfolio directory in the system temporary directory.
func WithCache(dir string, period date.Period) Option {
	return func(o *options) {
		o.cache = true
		o.cacheDir = dir
		o.period = period
	}
}

func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *options) { o.log = log }
}

// WithTransport replaces the network transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// NewClient returns an http.Client configured by opts.
func NewClient(opts ...Option) *http.Client {
	o := options{
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		base:      http.DefaultTransport,
		log:       zap.NewNop().Sugar(),
		today:     date.Today,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var rt http.RoundTripper = &userAgent{base: o.base, ua: o.userAgent}
	if o.limit > 0 {
		rt = &limited{base: rt, limiter: rate.NewLimiter(o.limit, o.burst)}
	}
	if o.failures > 0 {
		rt = newBreaker(rt, o.failures, o.cooldown, o.log)
	}
	if o.cache {
		dir := o.cacheDir
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "fxfolio")
		}
		rt = &diskCache{base: rt, dir: dir, period: o.period, today: o.today, log: o.log}
	}
	return &http.Client{Timeout: o.timeout, Transport: rt}
}

// userAgent sets the User-Agent header of requests that have none.
type userAgent struct {
	base http.RoundTripper
	ua   string
}

func (t *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.ua == "" || req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(req)
}

// limited waits for the limiter before each request.
type limited struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limited) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return t.base.RoundTrip(req)
}

// errServerSide marks responses counted as failures by the breaker.
var errServerSide = errors.New("server side error")

// breaker fails fast once a host keeps failing.
type breaker struct {
	base http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

func newBreaker(base http.RoundTripper, failures uint32, cooldown time.Duration, log *zap.SugaredLogger) *breaker {
	return &breaker{
		base: base,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "market-data",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnw("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (t *breaker) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	_, err := t.cb.Execute(func() (interface{}, error) {
		var err error
		resp, err = t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, errServerSide
		}
		return nil, nil
	})
	switch {
	case errors.Is(err, errServerSide):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%s: %w", req.URL.Host, ErrCircuitOpen)
	case err != nil:
		return nil, err
	}
	return resp, nil
}
