package backend

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Badsworth/pfml-scripts-sub007/internal/config"
)

// New creates the backend selected by cfg
func New(cfg config.BackendConfig, limiter *Limiter) (Backend, error) {
	switch strings.ToLower(cfg.Driver) {
	case "http", "":
		return NewHTTPBackend(cfg, limiter)

	case "dryrun":
		return NewDryRun(cfg.DryRunFailureRate, 0), nil

	default:
		return nil, eris.Errorf("unknown backend driver: %s (supported: http, dryrun)", cfg.Driver)
	}
}
