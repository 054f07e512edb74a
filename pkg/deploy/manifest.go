package deploy

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/google/jsonschema-go/jsonschema"
)

// Manifest is the YAML deployment descriptor. It names the target
// store, the level to deploy up to, and where the schema sources live.
//
//	version: 1
//	target:
//	  host: localhost
//	  port: 6969
//	max_level: 5
//	schema_dir: schema
//	levels:
//	  - level: 4
//	    queries: [addMemoryRelation, getMemoryRelations]
type Manifest struct {
	Version   int            `json:"version" yaml:"version"`
	Target    ManifestTarget `json:"target" yaml:"target"`
	MaxLevel  int            `json:"max_level" yaml:"max_level"`
	SchemaDir string         `json:"schema_dir,omitempty" yaml:"schema_dir"`
	Levels    []ManifestLvl  `json:"levels,omitempty" yaml:"levels"`
}

// ManifestTarget is the store the manifest deploys to.
type ManifestTarget struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// ManifestLvl optionally overrides the queries deployed for one level.
type ManifestLvl struct {
	Level   int      `json:"level" yaml:"level"`
	Queries []string `json:"queries,omitempty" yaml:"queries"`
}

var (
	manifestSchemaOnce sync.Once
	manifestSchema     *jsonschema.Resolved
	manifestSchemaErr  error
)

func resolvedManifestSchema() (*jsonschema.Resolved, error) {
	manifestSchemaOnce.Do(func() {
		schema, err := jsonschema.For[Manifest](nil)
		if err != nil {
			manifestSchemaErr = err
			return
		}
		manifestSchema, manifestSchemaErr = schema.Resolve(nil)
	})
	return manifestSchema, manifestSchemaErr
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	// YAML to generic JSON first, so the schema sees what was actually
	// written rather than Go zero values.
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("deploy: manifest is not valid YAML: %w", err)
	}
	var generic any
	if err := json.Unmarshal(jsonData, &generic); err != nil {
		return nil, fmt.Errorf("deploy: manifest: %w", err)
	}

	resolved, err := resolvedManifestSchema()
	if err != nil {
		return nil, fmt.Errorf("deploy: manifest schema: %w", err)
	}
	if err := resolved.Validate(generic); err != nil {
		return nil, fmt.Errorf("deploy: invalid manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(jsonData, &m); err != nil {
		return nil, fmt.Errorf("deploy: manifest: %w", err)
	}
	if err := m.check(); err != nil {
		return nil, err
	}
	return &m, nil
}

// check enforces constraints the JSON schema cannot express.
func (m *Manifest) check() error {
	if m.Version != 1 {
		return fmt.Errorf("deploy: unsupported manifest version %d", m.Version)
	}
	if m.Target.Host == "" {
		return fmt.Errorf("deploy: manifest has no target host")
	}
	if m.Target.Port <= 0 || m.Target.Port > 65535 {
		return fmt.Errorf("deploy: bad target port %d", m.Target.Port)
	}
	max := Level(m.MaxLevel)
	if !max.Valid() {
		return fmt.Errorf("deploy: max_level %d out of range 0..%d", m.MaxLevel, int(MaxLevel))
	}

	// Level overrides must reference deployed levels and known queries.
	for _, lvl := range m.Levels {
		l := Level(lvl.Level)
		if !l.Valid() || l > max {
			return fmt.Errorf("deploy: manifest level %d outside deployment range", lvl.Level)
		}
		def := definitions[l]
		for _, q := range lvl.Queries {
			if !contains(def.Queries, q) {
				return fmt.Errorf("deploy: query %q does not belong to %s", q, l)
			}
		}
	}
	return nil
}

// Max returns the manifest's target level.
func (m *Manifest) Max() Level { return Level(m.MaxLevel) }

// QueriesFor returns the queries to deploy for one level, honoring any
// manifest override.
func (m *Manifest) QueriesFor(l Level) []string {
	for _, lvl := range m.Levels {
		if Level(lvl.Level) == l && len(lvl.Queries) > 0 {
			return lvl.Queries
		}
	}
	if !l.Valid() {
		return nil
	}
	return definitions[l].Queries
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
