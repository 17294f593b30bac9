package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pinkittys/flowerstory/internal/observability"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Version    int         `yaml:"version"`
	Candidates []Candidate `yaml:"candidates"`
}

// Parse decodes a catalog document. JSON input is accepted as YAML.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(f.Candidates)
}

// Marshal encodes candidates in the catalog file format.
func Marshal(candidates []Candidate) ([]byte, error) {
	return yaml.Marshal(catalogFile{Version: 1, Candidates: candidates})
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadFile reads a catalog from a YAML or JSON file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Source produces a complete catalog.
type Source interface {
	Load(ctx context.Context) (*Catalog, error)
	Name() string
}

// EmbeddedSource serves the built-in catalog.
type EmbeddedSource struct{}

// Load returns the embedded catalog.
func (EmbeddedSource) Load(context.Context) (*Catalog, error) { return Default() }

// Name returns "embedded".
func (EmbeddedSource) Name() string { return "embedded" }

// FileSource reads the catalog from a file on every load.
type FileSource struct {
	Path string
}

// Load reads and parses the file.
func (s FileSource) Load(context.Context) (*Catalog, error) { return LoadFile(s.Path) }

// Name returns "file".
func (s FileSource) Name() string { return "file" }

// Store publishes the current catalog. Readers get a consistent snapshot
// without locking; Swap replaces the whole catalog at once.
type Store struct {
	current  atomic.Pointer[Catalog]
	loadedAt atomic.Int64
	logger   *observability.Logger
}

// NewStore creates a store holding c.
func NewStore(logger *observability.Logger, c *Catalog) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Store{logger: logger.WithComponent("catalog")}
	s.Swap(c)
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() *Catalog {
	return s.current.Load()
}

// LoadedAt returns when the current snapshot was installed.
func (s *Store) LoadedAt() time.Time {
	return time.Unix(0, s.loadedAt.Load())
}

// Swap installs c and returns the previous snapshot.
func (s *Store) Swap(c *Catalog) *Catalog {
	old := s.current.Swap(c)
	s.loadedAt.Store(time.Now().UnixNano())
	return old
}

// Reload loads a fresh catalog from src and swaps it in. On error the
// current catalog stays in place.
func (s *Store) Reload(ctx context.Context, src Source) (*Catalog, error) {
	start := time.Now()
	c, err := src.Load(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("source", src.Name()).Msg("Catalog reload failed")
		return nil, fmt.Errorf("reload catalog from %s: %w", src.Name(), err)
	}
	s.Swap(c)
	s.logger.Info().
		Str("source", src.Name()).
		Int("candidates", c.Len()).
		Dur("duration", time.Since(start)).
		Msg("Catalog reloaded")
	return c, nil
}
