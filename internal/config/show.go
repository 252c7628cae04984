package config

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// RenderEffective writes the resolved configuration to w as TOML, preceded
// by a comment naming its source. The output is itself a valid config file.
func RenderEffective(r *Resolved, w io.Writer) error {
	source := "defaults (no config file)"
	if r.FromFile {
		source = r.ConfigPath
	}

	if _, err := fmt.Fprintf(w, "# Effective configuration\n# Source: %s\n\n", source); err != nil {
		return err
	}

	if err := toml.NewEncoder(w).Encode(r.Config); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}

	return nil
}
