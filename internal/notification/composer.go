package notification

import (
	"fmt"
	"strings"
)

type Composer struct {
	catalog Catalog
	icon    string
}

func NewComposer(catalog Catalog, icon string) *Composer {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Composer{catalog: catalog, icon: icon}
}

// Compose builds the payload for kind. A non-blank message replaces the
// default body; nothing else depends on it.
func (c *Composer) Compose(kind Kind, message string) (Payload, error) {
	tmpl, ok := c.catalog[kind]
	if !ok {
		return Payload{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	body := tmpl.Body
	if msg := strings.TrimSpace(message); msg != "" {
		body = msg
	}

	return Payload{
		Title: tmpl.Title,
		Body:  body,
		Icon:  c.icon,
		Badge: c.icon,
		Tag:   kind.Tag(),
		Data:  Data{Type: kind},
	}, nil
}
