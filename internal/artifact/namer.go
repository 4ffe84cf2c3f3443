package artifact

import (
	"errors"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"invoiz/internal/model"
)

// GenericName is the container base name for messages without a subject.
const GenericName = "email"

// Clean maps every rune that is not a letter or digit to '_', one for one.
func Clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// WithCounter appends the collision counter n to a base name.
func WithCounter(base string, n int) string {
	return base + "_" + strconv.Itoa(n)
}

// ContainerStore is the part of the artifact store the Namer needs.
type ContainerStore interface {
	Exists(name string) bool
	Mkdir(name string) error // fs.ErrExist when taken
}

// Namer hands out container names that are unique within its store.
type Namer struct {
	store  ContainerStore
	logger *slog.Logger

	mu sync.Mutex // serializes exists -> mkdir
}

func NewNamer(store ContainerStore, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{store: store, logger: logger}
}

// BaseName derives the uncontested container name for a subject.
func BaseName(subject string) string {
	if strings.TrimSpace(subject) == "" {
		return GenericName
	}
	return Clean(subject)
}

// Reserve picks a free name for subject and creates the container. The name
// belongs to the caller once Reserve returns; creation is the commit point.
//
// Every candidate is derived from the base name, never from the previous
// candidate, so counters replace each other instead of stacking and digits
// from the subject are never mistaken for one: Invoice, Invoice_1, Invoice_2.
func (n *Namer) Reserve(subject string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	base := BaseName(subject)
	candidate := base
	for counter := 0; ; counter++ {
		if counter > 0 {
			candidate = WithCounter(base, counter)
		}
		if n.store.Exists(candidate) {
			continue
		}
		err := n.store.Mkdir(candidate)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", &model.MaterializationError{Path: candidate, Err: err}
		}
		if counter > 0 {
			n.logger.Debug("container name collision resolved", "base", base, "name", candidate)
		}
		return candidate, nil
	}
}
