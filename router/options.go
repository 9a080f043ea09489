package router

import command "github.com/goliatone/go-command-worker"

type Option func(m *Mux)

// WithRouteMatcher replaces the exact name comparison used when a name has
// no direct registration.
func WithRouteMatcher(matcher func(pattern, name string) bool) Option {
	return func(m *Mux) {
		if matcher != nil {
			m.routeMatch = matcher
		}
	}
}

type RouterOption func(r *Router)

func WithLogger(logger command.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMuxOptions(opts ...Option) RouterOption {
	return func(r *Router) {
		r.muxOpts = append(r.muxOpts, opts...)
	}
}
