// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

func LoadRegistry(path string) (*ProductRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ProductRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// New returns an empty registry stamped with the current time.
func New() *ProductRegistry {
	return &ProductRegistry{
		Version:     "1.0.0",
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Products:    []Product{},
	}
}

// Save writes the registry as indented JSON, creating parent directories.
func (r *ProductRegistry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

// Validate checks the registry against its JSON schema and rejects
// duplicate product ids.
func (r *ProductRegistry) Validate() error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(registrySchema),
		gojsonschema.NewGoLoader(r),
	)
	if err != nil {
		return fmt.Errorf("failed to validate registry: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid registry: %s", strings.Join(msgs, "; "))
	}

	ids := make(map[string]bool, len(r.Products))
	for _, p := range r.Products {
		if ids[p.ID] {
			return fmt.Errorf("duplicate product ID: %s", p.ID)
		}
		ids[p.ID] = true
	}
	return nil
}

// Find returns the product with the given id.
func (r *ProductRegistry) Find(id string) (Product, bool) {
	if r == nil {
		return Product{}, false
	}
	for _, p := range r.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Active reports whether the product is sold and grants entitlements.
func (p Product) Active() bool {
	return p.Status == "" || p.Status == StatusActive
}

// OfferingOrDefault is the offering the product is listed under.
func (p Product) OfferingOrDefault() string {
	if p.Offering == "" {
		return DefaultOffering
	}
	return p.Offering
}

// Add appends p, refusing duplicates.
func (r *ProductRegistry) Add(p Product) error {
	if _, exists := r.Find(p.ID); exists {
		return fmt.Errorf("product with ID %s already exists", p.ID)
	}
	if p.Entitlements == nil {
		p.Entitlements = []string{}
	}
	r.Products = append(r.Products, p)
	r.touch()
	return nil
}

// Update sets one field of an existing product. entitlements takes a comma
// separated list.
func (r *ProductRegistry) Update(id, field, value string) error {
	for i := range r.Products {
		if r.Products[i].ID != id {
			continue
		}
		p := &r.Products[i]
		switch field {
		case "displayName":
			p.DisplayName = value
		case "description":
			p.Description = value
		case "packageType":
			p.PackageType = value
		case "offering":
			p.Offering = value
		case "status":
			p.Status = value
		case "entitlements":
			p.Entitlements = SplitList(value)
		default:
			return fmt.Errorf("unknown field: %s", field)
		}
		r.touch()
		return nil
	}
	return fmt.Errorf("product with ID %s not found", id)
}

func (r *ProductRegistry) touch() {
	r.LastUpdated = time.Now().UTC().Format(time.RFC3339)
}

// SplitList splits a comma separated flag value, dropping blanks.
func SplitList(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
