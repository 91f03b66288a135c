package site

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv substitutes ${VAR} and ${VAR:-default} references in the given
// content with values from the process environment. Unset variables without a
// default expand to the empty string.
func ExpandEnv(content string) string {
	return envVarRe.ReplaceAllStringFunc(content, func(m string) string {
		expr := m[2 : len(m)-1]
		if name, def, ok := strings.Cut(expr, ":-"); ok {
			if v, set := os.LookupEnv(name); set {
				return v
			}
			return def
		}
		return os.Getenv(expr)
	})
}

// Load parses a YAML site configuration from raw content, substituting
// environment variables first, and validates it. It returns a ConfigError on
// any invariant violation.
func Load(content []byte) (*Configuration, error) {
	expanded := ExpandEnv(string(content))
	cfg := Configuration{}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("site config: parse: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and parses a YAML site configuration file.
func LoadFile(path string) (*Configuration, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("site config: read %s: %w", path, err)
	}
	cfg, err := Load(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// applyDefaults fills in values the YAML form leaves implicit: parameter
// types default to string, entity names default to their map key, and table
// names and primary keys default from the schema map key.
func applyDefaults(cfg *Configuration) {
	for i := range cfg.RoutePatterns {
		p := &cfg.RoutePatterns[i]
		for name, spec := range p.Parameters {
			if spec.Type == "" {
				spec.Type = ParameterString
			} else {
				spec.Type = CoerceParameterType(string(spec.Type))
			}
			p.Parameters[name] = spec
		}
	}
	for name, def := range cfg.Entities {
		if def.Name == "" {
			def.Name = name
		}
		cfg.Entities[name] = def
	}
	for name, table := range cfg.Schema.Tables {
		if table.Name == "" {
			table.Name = name
		}
		if table.PrimaryKey == "" {
			table.PrimaryKey = "id"
		}
		cfg.Schema.Tables[name] = table
	}
}
