package discovery

import (
	"context"

	"github.com/dpup/passage/errors"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"google.golang.org/grpc/codes"
)

// ErrNoSigningKeys is returned when a manager has no key material to serve.
var ErrNoSigningKeys = errors.NewC("discovery: no signing keys available", codes.NotFound)

// Manager provides a registration's current provider configuration and
// signing keys. Implementations must be safe for concurrent use.
type Manager interface {
	// Configuration returns the provider configuration document.
	Configuration(ctx context.Context) (*Document, error)

	// SigningKeys returns the provider's current key set.
	SigningKeys(ctx context.Context) (jwk.Set, error)
}

// StaticManager serves a fixed configuration snapshot. Used for registrations
// configured with explicit provider metadata instead of a discovery endpoint.
type StaticManager struct {
	doc  *Document
	keys jwk.Set
}

// NewStaticManager returns a Manager over a fixed snapshot. keys may be nil
// when the registration carries no provider keys.
func NewStaticManager(doc *Document, keys jwk.Set) *StaticManager {
	return &StaticManager{doc: doc, keys: keys}
}

func (m *StaticManager) Configuration(ctx context.Context) (*Document, error) {
	return m.doc, nil
}

func (m *StaticManager) SigningKeys(ctx context.Context) (jwk.Set, error) {
	if m.keys == nil {
		return nil, errors.Mark(ErrNoSigningKeys, 0)
	}
	return m.keys, nil
}
