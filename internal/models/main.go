// Package models defines the core data structures for listings, users and sessions.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Category is the listing category that decides projection membership.
type Category string

const (
	// CategoryBNB marks a short-stay listing.
	CategoryBNB Category = "BNB"
	// CategoryApartment marks a long-term apartment listing.
	CategoryApartment Category = "Apartment"
)

// Known reports whether c selects one of the category projections.
func (c Category) Known() bool {
	return c == CategoryBNB || c == CategoryApartment
}

// MediaKind identifies the type of an uploaded media file.
type MediaKind string

const (
	// MediaImage is a still image.
	MediaImage MediaKind = "image"
	// MediaVideo is a video clip.
	MediaVideo MediaKind = "video"
)

// Valid reports whether k is a supported media kind.
func (k MediaKind) Valid() bool {
	return k == MediaImage || k == MediaVideo
}

// Listing is a property record as stored under the Properties root.
// Numeric-looking fields are kept as text, the way the front-end enters them.
type Listing struct {
	// ID is the remote key; empty while the listing is a draft.
	ID string `json:"id,omitempty"`
	// Name is the listing title.
	Name string `json:"name"`
	// AgentName is the contact agent's display name.
	AgentName string `json:"agentName"`
	// AgentPhone is the agent's phone number for calls.
	AgentPhone string `json:"agentPhone"`
	// AgentEmail is the agent's contact email.
	AgentEmail string `json:"agentEmail,omitempty"`
	// Description is free text shown on the details page.
	Description string `json:"description"`
	// Category selects the BNB or Apartment projection.
	Category Category `json:"category"`
	// Price is a decimal number as text.
	Price string `json:"price"`
	// Bedrooms is an integer as text.
	Bedrooms string `json:"bedrooms"`
	// Bathrooms is an integer as text.
	Bathrooms string `json:"bathrooms"`
	// Location is a free-text address or area.
	Location string `json:"location"`
	// Amenities is free text.
	Amenities string `json:"amenities"`
	// WhatsappNumber is the agent's WhatsApp contact.
	WhatsappNumber string `json:"whatsappNumber"`
	// ImageURL is the legacy primary image, kept for older clients.
	ImageURL string `json:"imageUrl"`
	// MediaURLs holds every uploaded media URL in upload order.
	MediaURLs []string `json:"mediaUrls,omitempty"`
	// MediaTypes is parallel to MediaURLs.
	MediaTypes []MediaKind `json:"mediaTypes,omitempty"`
	// Latitude is an optional map coordinate.
	Latitude *float64 `json:"latitude,omitempty"`
	// Longitude is an optional map coordinate.
	Longitude *float64 `json:"longitude,omitempty"`
	// CreatedAt is unix milliseconds, stamped by updates.
	CreatedAt int64 `json:"createdAt,omitempty"`
}

// PrimaryImageURL returns the first URL typed as image, else the first URL,
// else the empty string.
func PrimaryImageURL(urls []string, kinds []MediaKind) string {
	for i, u := range urls {
		if i < len(kinds) && kinds[i] == MediaImage {
			return u
		}
	}
	if len(urls) > 0 {
		return urls[0]
	}
	return ""
}

// ValidateDraft checks what the add form requires before any upload:
// at least one media file and a name, price and agent.
func (l *Listing) ValidateDraft(mediaCount int) error {
	if mediaCount == 0 {
		return fmt.Errorf("%w: select at least one image or video", ErrValidation)
	}
	if strings.TrimSpace(l.Name) == "" || strings.TrimSpace(l.Price) == "" || strings.TrimSpace(l.AgentName) == "" {
		return fmt.Errorf("%w: name, price and agent name are required", ErrValidation)
	}
	return nil
}

// User is the account record stored under Users/<uid>.
type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	// Password is never written by this module; credentials stay with the
	// identity provider. The field is decoded so legacy records round-trip.
	Password string `json:"password,omitempty"`
	UID      string `json:"uid"`
	Role     string `json:"role"`
}

const (
	// RoleUser is the default account role.
	RoleUser = "user"
	// RoleAdmin may create, update and delete listings.
	RoleAdmin = "admin"
	// DefaultUsername is used when a profile has no username.
	DefaultUsername = "User"
)

// Credential is a live session issued by the identity provider.
type Credential struct {
	UID          string
	Email        string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the credential's ID token is past its expiry.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Session is the remembered login state persisted on the device.
type Session struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

// Route names a front-end destination.
type Route string

const (
	RouteStart       Route = "start"
	RouteLogin       Route = "login"
	RouteMain        Route = "main-screen"
	RouteAddProperty Route = "add-property"
)

// RouteForRole returns where a freshly signed-in user lands.
func RouteForRole(role string) Route {
	if role == RoleAdmin {
		return RouteAddProperty
	}
	return RouteMain
}
