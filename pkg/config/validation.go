package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared across Validate calls; validator instances cache
// struct metadata.
var validate = validator.New()

// Validate checks the configuration against the struct validation tags and
// a few cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	if cfg.Queue.MaxBackoff > 0 && cfg.Queue.BaseBackoff > cfg.Queue.MaxBackoff {
		return fmt.Errorf("queue.base_backoff (%s) must not exceed queue.max_backoff (%s)",
			cfg.Queue.BaseBackoff, cfg.Queue.MaxBackoff)
	}

	if cfg.Sync.BaseURL == "" {
		return errors.New("sync.base_url is required: queued requests need an upstream to replay against")
	}

	return nil
}

// formatValidationErrors turns validator's field errors into a single
// readable message with config-file field paths.
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q validation (value: %v)",
			fieldPath(fe), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
}

// fieldPath converts a validator namespace like "Config.Cache.Strategy"
// into the config-file form "cache.strategy".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns)
}
