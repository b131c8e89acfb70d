package notification

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Template struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// Catalog holds the title and default body for every Kind.
type Catalog map[Kind]Template

func DefaultCatalog() Catalog {
	return Catalog{
		KindWashing: {
			Title: "Washing done!",
			Body:  "Your laundry is ready to be taken out of the washing machine.",
		},
		KindDrying: {
			Title: "Drying done!",
			Body:  "Your laundry is ready to be taken out of the dryer.",
		},
	}
}

func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog overlays a YAML document keyed by kind onto DefaultCatalog.
// Fields left empty keep their default.
func ParseCatalog(data []byte) (Catalog, error) {
	var overrides map[string]Template
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse messages file: %w", err)
	}

	catalog := DefaultCatalog()
	for name, tmpl := range overrides {
		kind, err := ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("messages file: %w", err)
		}

		merged := catalog[kind]
		if tmpl.Title != "" {
			merged.Title = tmpl.Title
		}
		if tmpl.Body != "" {
			merged.Body = tmpl.Body
		}
		catalog[kind] = merged
	}

	return catalog, nil
}
