package service

import (
	"time"

	"go.uber.org/zap"
)

const defaultSessionWindow = 30 * time.Minute

type options struct {
	now           func() time.Time
	slugGenerator func() (string, error)
	sessionWindow time.Duration
	baseURL       string
}

// Option настраивает сервисы пакета
type Option func(*options)

// WithClock подменяет источник текущего времени
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSlugGenerator подменяет генератор slug для коротких ссылок
func WithSlugGenerator(gen func() (string, error)) Option {
	return func(o *options) { o.slugGenerator = gen }
}

// WithSessionWindow задаёт окно, в пределах которого просмотр продлевает сессию
func WithSessionWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sessionWindow = d
		}
	}
}

// WithBaseURL задаёт адрес, от которого строятся короткие ссылки
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

func buildOptions(opts []Option) options {
	o := options{
		now:           func() time.Time { return time.Now().UTC() },
		slugGenerator: generateSlug,
		sessionWindow: defaultSessionWindow,
		baseURL:       "http://localhost:8080",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
