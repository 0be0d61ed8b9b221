package backup

import (
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/logbook/internal/datastore"
)

// Kind tells how a snapshot was triggered. The values are the stored tipo
// strings.
type Kind string

const (
	KindManual    Kind = "manual"
	KindAutomatic Kind = "automatico"
)

// ParseKind accepts the stored values and the English alias "automatic".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KindManual):
		return KindManual, nil
	case string(KindAutomatic), "automatic":
		return KindAutomatic, nil
	}
	return "", newError(ErrValidation, "parse_kind", fmt.Sprintf("unknown snapshot kind %q", s), nil)
}

// Snapshot is an immutable copy of the three tracked collections.
type Snapshot struct {
	ID        string                `json:"id"`
	CreatedAt time.Time             `json:"created_at"`
	Kind      Kind                  `json:"tipo"`
	Payload   datastore.Collections `json:"data_snapshot"`

	// Malformed is set when the stored payload could not be decoded and
	// Payload was replaced with empty collections.
	Malformed bool `json:"-"`
}

// Counts returns the number of records per collection.
func (s *Snapshot) Counts() map[datastore.Collection]int {
	counts := make(map[datastore.Collection]int, len(datastore.AllCollections))
	for _, c := range datastore.AllCollections {
		counts[c] = s.Payload.Len(c)
	}
	return counts
}
