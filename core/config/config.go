// Package config loads typed configuration from environment variables.
//
// A .env file, when present, is loaded once before the first parse so local
// development matches production behavior. Struct fields use `env` tags from
// the caarlos0/env library; required secrets use `env:"NAME,required"` so a
// misconfigured process fails at startup rather than at request time.
package config

import (
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var loadDotenv sync.Once

// Load parses environment variables into the given config struct pointer.
func Load(cfg any) error {
	loadDotenv.Do(func() {
		// Missing .env is the normal case in production.
		_ = godotenv.Load()
	})

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config %T: %w", cfg, err)
	}
	return nil
}

// MustLoad is Load that panics on failure, for use during startup wiring.
func MustLoad(cfg any) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
