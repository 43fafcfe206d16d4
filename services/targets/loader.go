package targets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/invopop/jsonschema"
	"github.com/upb/bedrock-failover-router/utils"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a target configuration document
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// File is the on-disk shape of a target configuration document.
type File struct {
	Models []ModelSpec `json:"models" yaml:"models" toml:"models" jsonschema:"minItems=1"`
}

// ModelSpec is one entry under models.
type ModelSpec struct {
	ModelID    string   `json:"model_id" yaml:"model_id" toml:"model_id" jsonschema:"minLength=1,description=Upstream model identifier"`
	Name       string   `json:"name,omitempty" yaml:"name" toml:"name" jsonschema:"description=Display name; defaults to model_id"`
	Regions    []string `json:"regions" yaml:"regions" toml:"regions" jsonschema:"minItems=1,description=Regions tried in order"`
	MaxRetries *int     `json:"max_retries,omitempty" yaml:"max_retries" toml:"max_retries" jsonschema:"minimum=1,default=2,description=Attempts per region"`
	RetryDelay *float64 `json:"retry_delay,omitempty" yaml:"retry_delay" toml:"retry_delay" jsonschema:"minimum=0,maximum=3600,default=2,description=Seconds between attempts on one region"`
}

// resolvedSpec is a ModelSpec with defaults applied, ready for validation
type resolvedSpec struct {
	ModelID    string   `validate:"required"`
	Regions    []string `validate:"required,min=1,dive,region"`
	MaxRetries int      `validate:"gte=1"`
	RetryDelay float64  `validate:"gte=0,lte=3600"`
}

// ConfigError reports a malformed target configuration.
type ConfigError struct {
	Source  string
	Message string
	Fields  map[string]string
	Err     error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	msg := "invalid target config"
	if e.Source != "" {
		msg += " " + e.Source
	}
	msg += ": " + e.Message
	if len(e.Fields) > 0 {
		problems := make([]string, 0, len(e.Fields))
		for _, p := range e.Fields {
			problems = append(problems, p)
		}
		sort.Strings(problems)
		return msg + ": " + strings.Join(problems, "; ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError checks if an error is a ConfigError
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// FormatFromPath picks a format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", &ConfigError{Source: path, Message: "unsupported file extension, want .json, .yaml, .yml or .toml"}
	}
}

// LoadFile reads and validates a target configuration file.
func LoadFile(path string) (*Registry, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Message: "failed to read file", Err: err}
	}

	reg, err := LoadBytes(data, format)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Source == "" {
			cfgErr.Source = path
		}
		return nil, err
	}
	return reg, nil
}

// LoadBytes parses and validates an in-memory document.
func LoadBytes(data []byte, format Format) (*Registry, error) {
	return Load(bytes.NewReader(data), format)
}

// Load decodes a document from r and builds a registry from it.
func Load(r io.Reader, format Format) (*Registry, error) {
	var f File

	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&f); err != nil {
			return nil, decodeError(err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&f); err != nil {
			return nil, decodeError(err)
		}
	case FormatTOML:
		if _, err := toml.NewDecoder(r).Decode(&f); err != nil {
			return nil, decodeError(err)
		}
	default:
		return nil, &ConfigError{Message: fmt.Sprintf("unsupported format %q", format)}
	}

	return FromFile(&f)
}

func decodeError(err error) error {
	if errors.Is(err, io.EOF) {
		return &ConfigError{Message: "document is empty"}
	}
	return &ConfigError{Message: "failed to decode document", Err: err}
}

// FromFile validates a decoded document, applies defaults, and returns
// the registry in document order.
func FromFile(f *File) (*Registry, error) {
	if len(f.Models) == 0 {
		return nil, &ConfigError{Message: "no models configured"}
	}

	targets := make([]Target, 0, len(f.Models))
	for i, m := range f.Models {
		spec := resolvedSpec{
			ModelID:    strings.TrimSpace(m.ModelID),
			Regions:    m.Regions,
			MaxRetries: DefaultMaxRetries,
			RetryDelay: DefaultRetryDelay.Seconds(),
		}
		if m.MaxRetries != nil {
			spec.MaxRetries = *m.MaxRetries
		}
		if m.RetryDelay != nil {
			spec.RetryDelay = *m.RetryDelay
		}

		if err := utils.ValidateStruct(&spec); err != nil {
			return nil, &ConfigError{
				Message: fmt.Sprintf("models[%d] %q is invalid", i, m.ModelID),
				Fields:  utils.GetValidationFields(err),
				Err:     err,
			}
		}

		name := strings.TrimSpace(m.Name)
		if name == "" {
			name = spec.ModelID
		}

		targets = append(targets, Target{
			ModelID:    spec.ModelID,
			Name:       name,
			Regions:    spec.Regions,
			MaxRetries: spec.MaxRetries,
			RetryDelay: time.Duration(spec.RetryDelay * float64(time.Second)),
		})
	}

	return NewRegistry(targets), nil
}

// Schema returns the JSON Schema of the configuration document.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{ExpandedStruct: true}
	s := r.Reflect(&File{})
	s.Title = "Target configuration"
	return s
}
