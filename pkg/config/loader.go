package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"

	"github.com/TON618OFF/FactorioStore/pkg/validator"
)

// Load parses environment variables into the provided struct and then runs
// struct validation on it. The struct uses `env` tags for the mapping and
// `validate` tags for invariants.
//
// Fields tagged with the `file` option read their value from the file named
// by the variable, which is how secrets mounted by a secret store are loaded:
//
//	type Config struct {
//	    Port     int    `env:"HTTP_PORT" envDefault:"8080" validate:"gte=1,lte=65535"`
//	    Password string `env:"MAIL_PASS_FILE,file"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := validator.Validate(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// FirstNonEmpty returns the first non-empty value. It resolves a setting that
// may come either inline or from a mounted secret file.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
