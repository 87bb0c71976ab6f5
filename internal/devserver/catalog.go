package devserver

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	defaultConfig "github.com/hummingbird-labs/hummingbird/config"
	"github.com/hummingbird-labs/hummingbird/internal/products"
)

// catalogFile is the on-disk shape of a catalog.
type catalogFile struct {
	Products []products.Item `yaml:"products"`
}

// Catalog is the recommendation list served for every session.
// It is safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	items []products.Item
}

// ParseCatalog decodes a YAML catalog. It must list at least one product and
// every product needs a unique id and a name.
func ParseCatalog(data []byte) ([]products.Item, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Products) == 0 {
		return nil, fmt.Errorf("parse catalog: no products")
	}
	seen := make(map[string]struct{}, len(f.Products))
	for i, it := range f.Products {
		if it.ID == "" || it.Name == "" {
			return nil, fmt.Errorf("parse catalog: product %d needs an id and a name", i)
		}
		if _, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate product id %q", it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return f.Products, nil
}

// NewCatalog loads the catalog at path, or the embedded default when path is empty.
func NewCatalog(path string) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Load(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Load replaces the catalog contents from path (embedded default when empty).
// On error the previous contents are kept.
func (c *Catalog) Load(path string) error {
	data := defaultConfig.DefaultCatalogYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read catalog %s: %w", path, err)
		}
	}
	items, err := ParseCatalog(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

// Items returns a copy of the catalog.
func (c *Catalog) Items() []products.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]products.Item, len(c.items))
	copy(out, c.items)
	return out
}
