// Package hints loads Hint Overlays: per-root documents that adjust scoring,
// destructive classification, descriptions and auth configuration.
//
// Overlays come from three places, highest precedence first: an explicit hint
// file for the root, an auto-generated overlay produced by an AutoConfigurator
// (persisted in a Store), and the universal default. A Loader resolves them and
// plugs into autotool.Build through autotool.WithOverlayResolver.
package hints

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/skosovsky/autotool"
)

// HintFile is the on-disk and on-the-wire form of an overlay.
type HintFile struct {
	Name                string            `json:"name,omitempty" jsonschema:"description=Display name of the overlay"`
	BoostPatterns       []PatternSpec     `json:"boostPatterns,omitempty" jsonschema:"description=Patterns that raise the score of matching callables"`
	PenalizePatterns    []PatternSpec     `json:"penalizePatterns,omitempty" jsonschema:"description=Patterns that lower the score of matching callables"`
	ImportantOwners     []string          `json:"importantOwners,omitempty"`
	PrioritizedNames    []string          `json:"prioritizedNames,omitempty"`
	TierLimits          map[string]int    `json:"tierLimits,omitempty" jsonschema:"description=Per-tier selection limits; 0 drops the tier"`
	DestructivePatterns []string          `json:"destructivePatterns,omitempty"`
	Descriptions        map[string]string `json:"descriptions,omitempty" jsonschema:"description=Description overrides keyed by tool id or callable name"`
	AuthConfig          map[string]any    `json:"authConfig,omitempty" jsonschema:"description=Passed to client handle construction; ${env.NAME} expands from the environment"`
}

// PatternSpec is one weighted pattern of a HintFile.
type PatternSpec struct {
	Match  string  `json:"match" jsonschema:"minLength=1"`
	Target string  `json:"target,omitempty" jsonschema:"enum=any,enum=name,enum=owner"`
	Weight float64 `json:"weight,omitempty" jsonschema:"minimum=0"`
}

var (
	schemaOnce sync.Once
	schemaErr  error
	compiled   *jsonschema.Schema
	schemaJSON []byte
)

const schemaURL = "autotool-hints.json"

func hintSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		r := &invopop.Reflector{
			DoNotReference:            true,
			AllowAdditionalProperties: false,
		}
		s := r.Reflect(&HintFile{})
		s.ID = ""
		schemaJSON, schemaErr = json.Marshal(s)
		if schemaErr != nil {
			return
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = err
			return
		}
		compiled, schemaErr = c.Compile(schemaURL)
	})
	return compiled, schemaErr
}

// Schema returns the JSON Schema every hint document is validated against.
func Schema() ([]byte, error) {
	if _, err := hintSchema(); err != nil {
		return nil, err
	}
	return bytes.Clone(schemaJSON), nil
}

// ParseJSON validates and decodes a JSON hint document.
func ParseJSON(data []byte) (*HintFile, error) {
	s, err := hintSchema()
	if err != nil {
		return nil, fmt.Errorf("hint schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse hints: %w", err)
	}
	if err := s.Validate(inst); err != nil {
		return nil, fmt.Errorf("invalid hints: %w", err)
	}
	var h HintFile
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode hints: %w", err)
	}
	return &h, nil
}

// ParseYAML converts a YAML hint document to JSON and parses it with ParseJSON.
func ParseYAML(data []byte) (*HintFile, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse hints: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	j, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parse hints: %w", err)
	}
	return ParseJSON(j)
}

// Overlay converts h into a compiled overlay of the given source. Regular
// expressions are compiled here, so an invalid pattern fails the conversion.
func (h *HintFile) Overlay(source autotool.OverlaySource) (*autotool.Overlay, error) {
	ov := &autotool.Overlay{
		Name:                h.Name,
		Source:              source,
		BoostPatterns:       patterns(h.BoostPatterns),
		PenalizePatterns:    patterns(h.PenalizePatterns),
		ImportantOwners:     h.ImportantOwners,
		PrioritizedNames:    h.PrioritizedNames,
		TierLimits:          h.TierLimits,
		DestructivePatterns: h.DestructivePatterns,
		Descriptions:        h.Descriptions,
		AuthConfig:          expandEnv(h.AuthConfig).(map[string]any),
	}
	if err := ov.Compile(); err != nil {
		return nil, err
	}
	return ov, nil
}

func patterns(specs []PatternSpec) []autotool.Pattern {
	if len(specs) == 0 {
		return nil
	}
	out := make([]autotool.Pattern, len(specs))
	for i, s := range specs {
		out[i] = autotool.Pattern{Match: s.Match, Target: autotool.PatternTarget(s.Target), Weight: s.Weight}
	}
	return out
}

var envRef = regexp.MustCompile(`\$\{env\.([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${env.NAME} in every string of an auth configuration.
func expandEnv(v any) any {
	switch x := v.(type) {
	case string:
		if !strings.Contains(x, "${env.") {
			return x
		}
		return envRef.ReplaceAllStringFunc(x, func(m string) string {
			return os.Getenv(envRef.FindStringSubmatch(m)[1])
		})
	case map[string]any:
		if x == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = expandEnv(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = expandEnv(e)
		}
		return out
	}
	return v
}
