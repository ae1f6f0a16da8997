// Package config loads the gateway's YAML configuration: which backends to
// federate, how to stitch records across them, and how the process runs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	compose "github.com/hanpama/graphgate/internal/compose"
	language "github.com/hanpama/graphgate/internal/language"
	schema "github.com/hanpama/graphgate/internal/schema"
)

// Config represents the complete gateway configuration.
type Config struct {
	Server      Server      `yaml:"server"`
	Backends    []Backend   `yaml:"backends"`
	Stitch      []Stitch    `yaml:"stitch"`
	Composition Composition `yaml:"composition"`
	Telemetry   Telemetry   `yaml:"telemetry"`
	Log         Log         `yaml:"log"`
}

// Server configures the client-facing HTTP endpoint.
type Server struct {
	Addr         string   `yaml:"addr"`
	Pretty       bool     `yaml:"pretty"`
	Timeout      string   `yaml:"timeout"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
	CORSOrigins  []string `yaml:"cors_origins"`
	// Playground serves the in-browser IDE at /. Introspection answers
	// __schema queries on the composite. Both default to on.
	Playground    bool `yaml:"playground"`
	Introspection bool `yaml:"introspection"`
}

// Backend declares one federated GraphQL service.
type Backend struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// Timeout caps every request to this backend, introspection included.
	Timeout string `yaml:"timeout"`
	// Headers are sent with every request to this backend. A caller's own
	// Authorization overrides a configured one.
	Headers map[string]string `yaml:"headers"`
}

// Stitch declares a composite-only field joining records across backends.
// Exactly one of batch_field and single_field picks the resolution strategy:
// batch_field resolves every same-wave parent with one set-membership lookup,
// single_field issues one lookup per parent.
type Stitch struct {
	Object      string `yaml:"object"`
	Field       string `yaml:"field"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Backend     string `yaml:"backend"`

	BatchField  string `yaml:"batch_field"`
	SingleField string `yaml:"single_field"`

	// ParentKey is the parent field carrying the join key, Arg the remote
	// lookup's argument it feeds. RemoteKey (batch only) is the record field
	// responses are correlated by.
	ParentKey string `yaml:"parent_key"`
	Arg       string `yaml:"arg"`
	RemoteKey string `yaml:"remote_key"`
}

// Composition configures schema merging.
type Composition struct {
	// OnIntrospectionError is fail (abort startup) or exclude (drop the
	// backend and continue).
	OnIntrospectionError string `yaml:"on_introspection_error"`
	// OnCollision is fail or rename.
	OnCollision string `yaml:"on_collision"`
	// ExtraTypes is an SDL snippet of composite-only type definitions that
	// stitched fields may reference.
	ExtraTypes string `yaml:"extra_types"`
}

// Telemetry configures tracing and metrics.
type Telemetry struct {
	OTelEndpoint string `yaml:"otel_endpoint"`
	OTelService  string `yaml:"otel_service"`
	Metrics      bool   `yaml:"metrics"`
}

// Log configures the process logger.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

const (
	OnIntrospectionErrorFail    = "fail"
	OnIntrospectionErrorExclude = "exclude"
)

// Default returns the configuration used when no file is given. Loading a
// file overrides only the keys it sets.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:          ":8080",
			Timeout:       "10s",
			MaxBodyBytes:  1 << 20,
			Playground:    true,
			Introspection: true,
		},
		Composition: Composition{
			OnIntrospectionError: OnIntrospectionErrorFail,
			OnCollision:          string(compose.PolicyFail),
		},
		Telemetry: Telemetry{OTelService: "graphgate"},
		Log:       Log{Level: "info"},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a configuration document over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks per-entry correctness. Whether any backends are configured
// at all is the caller's concern: flags may still add them.
func (c *Config) Validate() error {
	if _, err := parseDuration(c.Server.Timeout); err != nil {
		return fmt.Errorf("server.timeout: %w", err)
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must not be negative")
	}

	names := map[string]bool{}
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backends[%d]: name is required", i)
		}
		if b.URL == "" {
			return fmt.Errorf("backends[%d] (%s): url is required", i, b.Name)
		}
		if names[b.Name] {
			return fmt.Errorf("backends[%d]: duplicate name %q", i, b.Name)
		}
		names[b.Name] = true
		if _, err := parseDuration(b.Timeout); err != nil {
			return fmt.Errorf("backends[%d] (%s): timeout: %w", i, b.Name, err)
		}
	}

	for i, s := range c.Stitch {
		at := fmt.Sprintf("stitch[%d]", i)
		if s.Object != "" && s.Field != "" {
			at = fmt.Sprintf("stitch[%d] (%s.%s)", i, s.Object, s.Field)
		}
		if s.Object == "" || s.Field == "" {
			return fmt.Errorf("%s: object and field are required", at)
		}
		if s.Type == "" {
			return fmt.Errorf("%s: type is required", at)
		}
		if _, err := schema.ParseTypeRef(s.Type); err != nil {
			return fmt.Errorf("%s: %w", at, err)
		}
		if s.Backend == "" {
			return fmt.Errorf("%s: backend is required", at)
		}
		switch {
		case s.BatchField != "" && s.SingleField != "":
			return fmt.Errorf("%s: batch_field and single_field are mutually exclusive", at)
		case s.BatchField != "":
			if s.ParentKey == "" || s.Arg == "" || s.RemoteKey == "" {
				return fmt.Errorf("%s: parent_key, arg and remote_key are required for a batch field", at)
			}
		case s.SingleField != "":
			if s.ParentKey == "" || s.Arg == "" {
				return fmt.Errorf("%s: parent_key and arg are required for a single field", at)
			}
		default:
			return fmt.Errorf("%s: batch_field or single_field is required", at)
		}
	}

	switch c.Composition.OnIntrospectionError {
	case "", OnIntrospectionErrorFail, OnIntrospectionErrorExclude:
	default:
		return fmt.Errorf("composition.on_introspection_error: unknown value %q", c.Composition.OnIntrospectionError)
	}
	switch compose.Policy(c.Composition.OnCollision) {
	case "", compose.PolicyFail, compose.PolicyRename:
	default:
		return fmt.Errorf("composition.on_collision: unknown value %q", c.Composition.OnCollision)
	}
	if c.Composition.ExtraTypes != "" {
		if _, err := extraTypes(c.Composition.ExtraTypes); err != nil {
			return err
		}
	}
	return nil
}

// ServerTimeout returns the parsed server timeout.
func (c *Config) ServerTimeout() time.Duration {
	d, _ := parseDuration(c.Server.Timeout)
	return d
}

// BackendTimeout returns the parsed per-backend timeout, zero when unset.
func (b *Backend) BackendTimeout() time.Duration {
	d, _ := parseDuration(b.Timeout)
	return d
}

// CollisionPolicy returns the configured composition policy.
func (c *Config) CollisionPolicy() compose.Policy {
	if c.Composition.OnCollision == "" {
		return compose.PolicyFail
	}
	return compose.Policy(c.Composition.OnCollision)
}

// Extras converts the stitch declarations and extra type SDL into the
// composition's extra surface. Returns nil when nothing is declared.
func (c *Config) Extras() (*compose.Extras, error) {
	if len(c.Stitch) == 0 && c.Composition.ExtraTypes == "" {
		return nil, nil
	}
	extras := &compose.Extras{}
	if c.Composition.ExtraTypes != "" {
		types, err := extraTypes(c.Composition.ExtraTypes)
		if err != nil {
			return nil, err
		}
		extras.Types = types
	}
	for _, s := range c.Stitch {
		ref, err := schema.ParseTypeRef(s.Type)
		if err != nil {
			return nil, fmt.Errorf("stitch %s.%s: %w", s.Object, s.Field, err)
		}
		if s.BatchField != "" {
			extras.Batch = append(extras.Batch, compose.BatchField{
				ObjectType:  s.Object,
				Name:        s.Field,
				Type:        ref,
				Description: s.Description,
				Backend:     s.Backend,
				BatchField:  s.BatchField,
				ParentKey:   s.ParentKey,
				ArgName:     s.Arg,
				RemoteKey:   s.RemoteKey,
			})
			continue
		}
		extras.Single = append(extras.Single, compose.SingleField{
			ObjectType:  s.Object,
			Name:        s.Field,
			Type:        ref,
			Description: s.Description,
			Backend:     s.Backend,
			RemoteField: s.SingleField,
			ParentKey:   s.ParentKey,
			ArgName:     s.Arg,
		})
	}
	return extras, nil
}

func extraTypes(sdl string) ([]*schema.Type, error) {
	doc, err := language.ParseSchema("extra_types", sdl)
	if err != nil {
		return nil, fmt.Errorf("composition.extra_types: %w", err)
	}
	if len(doc.Extensions) > 0 {
		return nil, fmt.Errorf("composition.extra_types: type extensions are not supported")
	}
	out := make([]*schema.Type, 0, len(doc.Definitions))
	for _, def := range doc.Definitions {
		out = append(out, schema.TypeFromAST(def))
	}
	return out, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
