package pathutil

import (
	"errors"

	"sonde-catalog/internal/domain/entity"
)

// ErrInvalidID is returned when an identifier taken from the URL path is invalid.
var ErrInvalidID = errors.New("invalid id")

// ValidateID checks a collection or item identifier against the same rule
// the converter enforces on the items it produces.
//
// Example:
//
//	err := ValidateID(r.PathValue("itemId")) // "sonde_001" -> nil, "../x" -> ErrInvalidID
func ValidateID(id string) error {
	if !entity.ValidIdentifier(id) {
		return ErrInvalidID
	}
	return nil
}
