package entity

// CollectionType is the STAC type of a collection document.
const CollectionType = "Collection"

// Collection groups catalog items. Only the fields the catalog stores are
// modelled; the rest of a STAC collection document is not kept.
type Collection struct {
	Type        string `json:"type"`
	StacVersion string `json:"stac_version"`
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
	Links       []Link `json:"links"`
}

// Validate checks the fields required before a collection is stored.
func (c *Collection) Validate() error {
	if c.ID == "" {
		return &ValidationError{Field: "id", Message: "collection id is required"}
	}
	if !ValidIdentifier(c.ID) {
		return &ValidationError{Field: "id", Message: "collection id contains characters outside [A-Za-z0-9._-]"}
	}
	if c.Type != "" && c.Type != CollectionType {
		return &ValidationError{Field: "type", Message: "type must be " + CollectionType}
	}
	return nil
}
