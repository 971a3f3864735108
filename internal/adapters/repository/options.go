package repository

import "github.com/okian/platecount/pkg/logger"

type options struct {
	logger       logger.Logger
	maxOpenConns int
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithLogger sets the logger used by the SQL backends.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxOpenConns bounds the connection pool of the SQL backends.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: logger.Get().Named("repository")}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
