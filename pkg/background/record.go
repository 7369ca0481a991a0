package background

import "time"

// ImageRecord is one day's image. Payload is empty when the bytes live in a blob
// store under BlobRef.
type ImageRecord struct {
	ID              string    `json:"id"`
	Payload         []byte    `json:"payload,omitempty"`
	ContentType     string    `json:"contentType,omitempty"`
	BlobRef         string    `json:"blobRef,omitempty"`
	AuthorName      string    `json:"authorName"`
	AuthorURL       string    `json:"authorUrl"`
	Description     string    `json:"description,omitempty"`
	SourceURL       string    `json:"unsplashUrl"`
	LocationCity    string    `json:"locationCity,omitempty"`
	LocationCountry string    `json:"locationCountry,omitempty"`
	FetchedAt       time.Time `json:"fetchedAt"`
}

func (r ImageRecord) Key() string { return r.ID }

// Attribution credits the photographer of the displayed image.
type Attribution struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	SourceURL   string `json:"unsplashUrl"`
	City        string `json:"locationCity"`
	Country     string `json:"locationCountry"`
}

func (r ImageRecord) Attribution() Attribution {
	return Attribution{
		Name:        r.AuthorName,
		URL:         r.AuthorURL,
		Description: r.Description,
		SourceURL:   r.SourceURL,
		City:        r.LocationCity,
		Country:     r.LocationCountry,
	}
}

// Background is what the page shows today: either the cached or fetched image
// with its attribution, or a static fallback.
type Background struct {
	Date        string       `json:"date"`
	Attribution *Attribution `json:"attribution,omitempty"`
	Image       []byte       `json:"-"`
	ContentType string       `json:"contentType,omitempty"`
	// ImageURL is set once the image bytes have been given a display handle.
	ImageURL    string `json:"imageUrl,omitempty"`
	Fallback    bool   `json:"fallback"`
	FallbackURL string `json:"fallbackUrl,omitempty"`
	Source      string `json:"source"`
	Err         error  `json:"-"`
}
