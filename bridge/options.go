package bridge

import (
	"github.com/MeteorsLiu/kvbridge/adapter"
	"go.uber.org/zap"
)

type Option func(*Storage)

// WithCapability replaces the default presence check (store != nil).
func WithCapability(c adapter.Capability) Option {
	return func(s *Storage) {
		s.capability = c
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Storage) {
		if log != nil {
			s.log = log
		}
	}
}

// WithUnavailableOutcome makes a missing store answer every command with
// {unavailable, undefined} instead of dropping it.
func WithUnavailableOutcome() Option {
	return func(s *Storage) {
		s.reportUnavailable = true
	}
}
