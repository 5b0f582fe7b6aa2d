// Package selectors provides named selector aliases: short, stable names
// that tool handlers (wait_for_element, click, fill, debug_element) accept
// in place of a raw CSS/XPath string, resolved against a hot-reloadable
// alias table (E3.5).
package selectors

import (
	"embed"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultAliasesFS embed.FS

// Def is one named selector's definition.
type Def struct {
	Selector string `yaml:"selector"`
	Type     string `yaml:"type"` // "css", "xpath", or "text"
}

// Valid reports whether d names a supported selector type.
func (d Def) Valid() bool {
	switch d.Type {
	case "css", "xpath", "text":
		return d.Selector != ""
	default:
		return false
	}
}

// Aliases maps a short name to its selector definition.
type Aliases map[string]Def

// Validate requires at least one alias and rejects malformed entries.
func (a Aliases) Validate() error {
	if len(a) == 0 {
		return fmt.Errorf("alias table must define at least one selector")
	}
	for name, def := range a {
		if !def.Valid() {
			return fmt.Errorf("alias %q: invalid type %q or empty selector", name, def.Type)
		}
	}
	return nil
}

var (
	defaultAliases Aliases
	loadOnce       sync.Once
	loadErr        error
)

// Defaults returns the compiled-in default alias table.
func Defaults() Aliases {
	loadOnce.Do(func() {
		defaultAliases, loadErr = loadEmbedded()
		if loadErr != nil {
			log.Error().Err(loadErr).Msg("selectors: failed to load embedded defaults, falling back")
			defaultAliases = fallbackAliases()
		}
	})
	return defaultAliases
}

func loadEmbedded() (Aliases, error) {
	data, err := defaultAliasesFS.ReadFile("defaults.yaml")
	if err != nil {
		return nil, err
	}
	var a Aliases
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// fallbackAliases is used only if the embedded defaults fail to parse.
func fallbackAliases() Aliases {
	return Aliases{
		"body": {Selector: "body", Type: "css"},
	}
}
