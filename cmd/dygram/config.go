package main

import (
	"fmt"

	"github.com/christopherdebeer/dygram/pkg/config"
)

// resolveConfig loads the effective Config for this invocation: from
// --config if given, otherwise flag/environment defaults. Credentials are
// deliberately not validated here — exec list/status/show/rm/clean and a
// playback execute never dial the live transport, so requiring
// ANTHROPIC_API_KEY this early would reject commands that don't need it.
func resolveConfig(rc *runContext) (*config.Config, error) {
	var cfg *config.Config
	if rc.cli.Config != "" {
		loaded, err := config.LoadConfig(config.LoaderOptions{
			Type: config.ConfigTypeFile,
			Path: rc.cli.Config,
		})
		if err != nil {
			return nil, fmt.Errorf("dygram: loading config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("dygram: %w", err)
		}
	}

	if rc.cli.RecordsDir != "" {
		cfg.Execution.RecordsDir = rc.cli.RecordsDir
	}
	return cfg, nil
}
