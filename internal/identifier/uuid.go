// Package identifier issues unique identifiers for persisted entities.
package identifier

import "github.com/google/uuid"

// UUIDProvider issues UUIDv7 identifiers. Its NewID method satisfies the
// IDProvider interfaces of the entity services.
type UUIDProvider struct{}

// NewUUIDProvider constructs a UUIDProvider.
func NewUUIDProvider() *UUIDProvider {
	return &UUIDProvider{}
}

// NewID returns a fresh UUIDv7 string.
func (p *UUIDProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
