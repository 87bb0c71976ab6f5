package products

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ErrorItemID is the id of the placeholder returned when a fetch fails.
const ErrorItemID = "error"

// Item is one tool or product recommendation.
type Item struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	ImageURL    string `json:"image_url" yaml:"image_url"`
	WebsiteURL  string `json:"website_url" yaml:"website_url"`
}

// IsError reports whether it is the fetch failure placeholder.
func (it Item) IsError() bool {
	return it.ID == ErrorItemID
}

// Response is the body of GET /api/v1/products/{sessionId}.
type Response struct {
	Products []Item `json:"products"`
}

// ErrorItem returns the placeholder shown when recommendations cannot be loaded.
func ErrorItem() Item {
	return Item{
		ID:          ErrorItemID,
		Name:        "Recommendations unavailable",
		Description: "We couldn't load tool recommendations for this session. Please try again in a moment.",
	}
}

var textPolicy = bluemonday.StrictPolicy()

// Sanitize strips markup from the text fields and drops links that are not
// http(s). The backend is trusted for structure, not for content.
func Sanitize(it Item) Item {
	return Item{
		ID:          strings.TrimSpace(it.ID),
		Name:        cleanText(it.Name),
		Description: cleanText(it.Description),
		ImageURL:    cleanURL(it.ImageURL),
		WebsiteURL:  cleanURL(it.WebsiteURL),
	}
}

func cleanText(s string) string {
	// StrictPolicy escapes what it keeps; the fields are plain text.
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

func cleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String()
	}
	return ""
}
