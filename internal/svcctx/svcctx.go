// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/cuentosapp/cuentos-server/internal/config"
	"github.com/cuentosapp/cuentos-server/internal/defra"
	"github.com/cuentosapp/cuentos-server/internal/home"
	"github.com/cuentosapp/cuentos-server/internal/processor"
	"github.com/cuentosapp/cuentos-server/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	DefraClient *defra.Client
	DefraSink   *defra.Sink
	Store       store.Store
	Processor   *processor.Processor
	ConfigStore config.Store
	Logger      *slog.Logger
	Home        *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// DefraClientFrom extracts the DefraDB client from context.
func DefraClientFrom(ctx context.Context) *defra.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.DefraClient
	}
	return nil
}

// DefraSinkFrom extracts the DefraDB write sink from context.
func DefraSinkFrom(ctx context.Context) *defra.Sink {
	if s := ServicesFrom(ctx); s != nil {
		return s.DefraSink
	}
	return nil
}

// StoreFrom extracts the record store from context.
func StoreFrom(ctx context.Context) store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// ProcessorFrom extracts the job processor from context.
func ProcessorFrom(ctx context.Context) *processor.Processor {
	if s := ServicesFrom(ctx); s != nil {
		return s.Processor
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// ConfigStoreFrom extracts the config store from context.
func ConfigStoreFrom(ctx context.Context) config.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigStore
	}
	return nil
}
