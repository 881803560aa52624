package entity

// PackIdentifier is the canonical name of a sticker pack (the last segment of its link).
type PackIdentifier string

func (id PackIdentifier) String() string {
	return string(id)
}

// PackMetadata describes one pack as returned by a metadata provider.
type PackMetadata struct {
	Identifier  PackIdentifier
	Title       string          // Display title
	ItemCount   int             // Number of stickers, never negative
	PreviewRefs []string        // Preview image URIs, in provider order
	Items       []ItemReference // One reference per index 0..ItemCount-1
	Description string          // Optional HTML description
}

// ItemReference locates one fetchable sticker.
type ItemReference struct {
	Index    int    // Position within the pack, starting at 0
	Locator  string // URI or provider specific token
	MIMEType string // Known content type, may be empty
}

// PackPreview is what is shown about a pack before it is downloaded.
type PackPreview struct {
	Identifier  PackIdentifier `json:"id"`
	Title       string         `json:"title"`
	ItemCount   int            `json:"count"`
	Previews    int            `json:"previews"`    // Number of preview images, addressed by position
	Description string         `json:"description"` // HTML
	Types       map[string]int `json:"types"`       // Sticker count per MIME type, "unknown" when the provider gave none
}
