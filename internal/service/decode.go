package service

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/atinyakov/swyppy/internal/models"
)

// decodeListing validates one record from the Properties root.
//
// The record must be a JSON object. Descriptive fields are optional
// strings, mediaUrls/mediaTypes are optional parallel string arrays,
// createdAt is an optional integer and latitude/longitude optional numbers.
// JSON null counts as absent. Any other type rejects the record.
func decodeListing(key string, raw json.RawMessage) (models.Listing, error) {
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return models.Listing{}, fmt.Errorf("%w: %s: not an object: %w", models.ErrDecodeSkipped, key, err)
	}
	if fields == nil {
		return models.Listing{}, fmt.Errorf("%w: %s: null record", models.ErrDecodeSkipped, key)
	}

	l := models.Listing{ID: key}
	var category string
	strs := map[string]*string{
		"name":           &l.Name,
		"agentName":      &l.AgentName,
		"agentPhone":     &l.AgentPhone,
		"agentEmail":     &l.AgentEmail,
		"description":    &l.Description,
		"category":       &category,
		"price":          &l.Price,
		"bedrooms":       &l.Bedrooms,
		"bathrooms":      &l.Bathrooms,
		"location":       &l.Location,
		"amenities":      &l.Amenities,
		"whatsappNumber": &l.WhatsappNumber,
		"imageUrl":       &l.ImageURL,
	}
	for name, dst := range strs {
		if err := optional(fields, name, dst); err != nil {
			return models.Listing{}, fmt.Errorf("%w: %s: %w", models.ErrDecodeSkipped, key, err)
		}
	}
	l.Category = models.Category(category)

	var kinds []string
	if err := optional(fields, "mediaUrls", &l.MediaURLs); err != nil {
		return models.Listing{}, fmt.Errorf("%w: %s: %w", models.ErrDecodeSkipped, key, err)
	}
	if err := optional(fields, "mediaTypes", &kinds); err != nil {
		return models.Listing{}, fmt.Errorf("%w: %s: %w", models.ErrDecodeSkipped, key, err)
	}
	if len(l.MediaURLs) != len(kinds) {
		return models.Listing{}, fmt.Errorf("%w: %s: %d media urls but %d media types",
			models.ErrDecodeSkipped, key, len(l.MediaURLs), len(kinds))
	}
	if len(kinds) > 0 {
		l.MediaTypes = make([]models.MediaKind, len(kinds))
		for i, k := range kinds {
			kind := models.MediaKind(k)
			if !kind.Valid() {
				return models.Listing{}, fmt.Errorf("%w: %s: media type %q", models.ErrDecodeSkipped, key, k)
			}
			l.MediaTypes[i] = kind
		}
	}

	var createdAt json.Number
	if err := optional(fields, "createdAt", &createdAt); err != nil {
		return models.Listing{}, fmt.Errorf("%w: %s: %w", models.ErrDecodeSkipped, key, err)
	}
	if createdAt != "" {
		ms, err := createdAt.Int64()
		if err != nil {
			return models.Listing{}, fmt.Errorf("%w: %s: createdAt %q is not an integer", models.ErrDecodeSkipped, key, createdAt)
		}
		l.CreatedAt = ms
	}

	for name, dst := range map[string]**float64{"latitude": &l.Latitude, "longitude": &l.Longitude} {
		var n json.Number
		if err := optional(fields, name, &n); err != nil {
			return models.Listing{}, fmt.Errorf("%w: %s: %w", models.ErrDecodeSkipped, key, err)
		}
		if n == "" {
			continue
		}
		f, err := n.Float64()
		if err != nil {
			return models.Listing{}, fmt.Errorf("%w: %s: %s %q", models.ErrDecodeSkipped, key, name, n)
		}
		*dst = &f
	}

	return l, nil
}

// optional decodes fields[name] into dst unless it is missing or null.
// json.Number destinations only accept JSON numbers.
func optional(fields map[string]json.RawMessage, name string, dst any) error {
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if _, isNumber := dst.(*json.Number); isNumber {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] == '"' {
			return fmt.Errorf("field %s: want number, got %s", name, trimmed)
		}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("field %s: %w", name, err)
	}
	return nil
}
