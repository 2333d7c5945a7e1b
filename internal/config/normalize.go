// internal/config/normalize.go
package config

import "strings"

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	for ui := range cfg.Fieldrec.Units {
		u := &cfg.Fieldrec.Units[ui]

		u.Label = strings.TrimSpace(u.Label)
		if u.Label == "" {
			u.Label = u.ID
		}

		b := &u.FieldBus
		b.Parity = strings.ToUpper(strings.TrimSpace(b.Parity))

		// Clamps. Validation already rejected negatives; these keep the
		// runtime loops sane when a field was explicitly zeroed.
		if b.FailThreshold < 1 {
			b.FailThreshold = 1
		}
		if b.IntervalMs < 100 {
			b.IntervalMs = 100
		}
		if b.BackoffStartMs < 500 {
			b.BackoffStartMs = 500
		}
		if b.BackoffMaxMs < b.BackoffStartMs {
			b.BackoffMaxMs = b.BackoffStartMs
		}

		if u.RotationMinutes < 1 {
			u.RotationMinutes = 1
		}
	}
}
