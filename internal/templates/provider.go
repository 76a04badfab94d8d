package templates

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/storeops/cart-recovery/internal/recovery"
)

// templatesFile is the on-disk document shape.
type templatesFile struct {
	Templates []recovery.MessageTemplate `yaml:"templates"`
}

// FileProvider serves message templates from a YAML file maintained by
// the settings module. The file is parsed once and cached; Reload
// picks up edits.
type FileProvider struct {
	path string

	mu     sync.Mutex
	cached []recovery.MessageTemplate
	loaded bool
}

// NewFileProvider returns a provider reading from path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Templates implements recovery.TemplateProvider.
func (p *FileProvider) Templates(_ context.Context) ([]recovery.MessageTemplate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		if err := p.load(); err != nil {
			return nil, err
		}
	}
	out := make([]recovery.MessageTemplate, len(p.cached))
	copy(out, p.cached)
	return out, nil
}

// Reload drops the cache so the next read re-parses the file.
func (p *FileProvider) Reload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = false
}

func (p *FileProvider) load() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read templates file: %w", err)
	}

	var doc templatesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse templates file %s: %w", p.path, err)
	}
	for i, t := range doc.Templates {
		if t.Name == "" {
			return fmt.Errorf("parse templates file %s: template %d has no name", p.path, i)
		}
		if t.Kind != "" && t.Kind != recovery.KindTransactional && t.Kind != recovery.KindMarketing {
			return fmt.Errorf("parse templates file %s: template %q has unknown kind %q", p.path, t.Name, t.Kind)
		}
	}

	p.cached = doc.Templates
	p.loaded = true
	return nil
}

// StaticProvider serves a fixed template list. Used in tests and as a
// built-in default when no file is configured.
type StaticProvider []recovery.MessageTemplate

// Templates implements recovery.TemplateProvider.
func (s StaticProvider) Templates(_ context.Context) ([]recovery.MessageTemplate, error) {
	return s, nil
}
