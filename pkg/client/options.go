package client

import "time"

// Options holds the tunables applied when building a Client. Invocations
// block server-side until the worker finishes an operation, so the request
// timeout has to outlast the worker's own bridge timeout.
type Options struct {
	APIKey              string
	Timeout             time.Duration
	MaxConnsPerHost     int
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

type Option func(*Options) error

// APIKey sets the bearer token sent with every request.
func APIKey(key string) Option {
	return func(o *Options) error {
		o.APIKey = key
		return nil
	}
}

// Timeout bounds each request end to end, including the blocking wait on
// /invoke. Defaults to 2 minutes.
func Timeout(d time.Duration) Option {
	return func(o *Options) error {
		o.Timeout = d
		return nil
	}
}

// MaxConnsPerHost caps connections to the worker in any state. Defaults
// to 50.
func MaxConnsPerHost(n int) Option {
	return func(o *Options) error {
		o.MaxConnsPerHost = n
		return nil
	}
}

// MaxIdleConns caps idle connections kept for reuse. Defaults to 50.
func MaxIdleConns(n int) Option {
	return func(o *Options) error {
		o.MaxIdleConns = n
		return nil
	}
}

// MaxIdleConnsPerHost caps idle connections kept per host. Defaults to 10.
func MaxIdleConnsPerHost(n int) Option {
	return func(o *Options) error {
		o.MaxIdleConnsPerHost = n
		return nil
	}
}

// IdleConnTimeout sets how long an idle connection lingers before closing.
// Defaults to 90 seconds.
func IdleConnTimeout(d time.Duration) Option {
	return func(o *Options) error {
		o.IdleConnTimeout = d
		return nil
	}
}

func NewOptions(opts ...Option) (*Options, error) {
	o := &Options{
		Timeout:             2 * time.Minute,
		MaxConnsPerHost:     50,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}
