package config

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// includeDoc decodes just the [[mirrors]] array of an included file.
type includeDoc struct {
	MirrorsRaw []MirrorConfig `toml:"mirrors"`
}

// Load reads path, merges in any files matched by [include]
// include_mirrors (lexical order), and resolves the result into
// cfg.Mirrors.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if cfg.Include.IncludeMirrors != "" {
		matches, err := filepath.Glob(cfg.Include.IncludeMirrors)
		if err != nil {
			return nil, fmt.Errorf("config: bad include glob %q: %w", cfg.Include.IncludeMirrors, err)
		}
		for _, m := range matches {
			var inc includeDoc
			if _, err := toml.DecodeFile(m, &inc); err != nil {
				return nil, fmt.Errorf("config: decode include %s: %w", m, err)
			}
			cfg.MirrorsRaw = append(cfg.MirrorsRaw, inc.MirrorsRaw...)
		}
	}

	if err := Resolve(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
