package notification

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindWashing Kind = "washing"
	KindDrying  Kind = "drying"
)

var ErrInvalidKind = errors.New("invalid type, must be 'washing' or 'drying'")

func Kinds() []Kind {
	return []Kind{KindWashing, KindDrying}
}

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.TrimSpace(s)); k {
	case KindWashing, KindDrying:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Tag is the client-side coalescing key; a new notification replaces any
// shown one with the same tag.
func (k Kind) Tag() string {
	return "laundry-" + string(k)
}

type Data struct {
	Type Kind `json:"type"`
}

// Payload is the JSON document the service worker receives in its push event.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Badge string `json:"badge"`
	Tag   string `json:"tag"`
	Data  Data   `json:"data"`
}
