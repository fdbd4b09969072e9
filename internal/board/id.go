package board

import "github.com/google/uuid"

// IDProvider issues object identifiers.
type IDProvider interface {
	NewID() (ObjectID, error)
}

type durableIDProvider struct{}

// NewDurableIDProvider constructs an IDProvider that issues UUIDv7 identifiers
// for persisted rows.
func NewDurableIDProvider() IDProvider {
	return &durableIDProvider{}
}

func (p *durableIDProvider) NewID() (ObjectID, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return ObjectID(value.String()), nil
}

type tempIDProvider struct{}

// NewTempIDProvider constructs an IDProvider that issues prefixed temporary
// identifiers for optimistic inserts.
func NewTempIDProvider() IDProvider {
	return &tempIDProvider{}
}

func (p *tempIDProvider) NewID() (ObjectID, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return ObjectID(TempIDPrefix + value.String()), nil
}
