// Package client implements the interactive shell that stands in for the
// mobile screens: browsing, auth and the admin listing forms.
package client

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/atinyakov/swyppy/internal/models"
)

// Prompter reads answers line by line from in and writes prompts to out.
type Prompter struct {
	sc  *bufio.Scanner
	out io.Writer
}

// NewPrompter wraps in and out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{sc: bufio.NewScanner(in), out: out}
}

// Line reads the next raw line. ok is false at end of input.
func (p *Prompter) Line() (string, bool) {
	if !p.sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.sc.Text()), true
}

// Ask prints label and returns the trimmed answer, or "" at end of input.
func (p *Prompter) Ask(label string) string {
	fmt.Fprintf(p.out, "%s: ", label)
	s, _ := p.Line()
	return s
}

// Confirm asks a yes/no question; anything but y or yes is no.
func (p *Prompter) Confirm(label string) bool {
	switch strings.ToLower(p.Ask(label + " (y/n)")) {
	case "y", "yes":
		return true
	}
	return false
}

// ListingFields asks for every editable listing field. The current value is
// shown in brackets and kept when the answer is empty.
func (p *Prompter) ListingFields(cur models.Listing) (models.Listing, error) {
	text := []struct {
		label string
		dst   *string
	}{
		{"Name", &cur.Name},
		{"Price", &cur.Price},
		{"Location", &cur.Location},
		{"Bedrooms", &cur.Bedrooms},
		{"Bathrooms", &cur.Bathrooms},
		{"Amenities", &cur.Amenities},
		{"Description", &cur.Description},
		{"Agent name", &cur.AgentName},
		{"Agent phone", &cur.AgentPhone},
		{"Agent email", &cur.AgentEmail},
		{"WhatsApp number", &cur.WhatsappNumber},
	}
	for _, f := range text {
		if v := p.Ask(withDefault(f.label, *f.dst)); v != "" {
			*f.dst = v
		}
	}

	if v := p.Ask(withDefault("Category (BNB/Apartment)", string(cur.Category))); v != "" {
		c := models.Category(v)
		if !c.Known() {
			return models.Listing{}, fmt.Errorf("%w: unknown category %q", models.ErrValidation, v)
		}
		cur.Category = c
	}

	for _, f := range []struct {
		label string
		dst   **float64
	}{{"Latitude", &cur.Latitude}, {"Longitude", &cur.Longitude}} {
		def := ""
		if *f.dst != nil {
			def = strconv.FormatFloat(**f.dst, 'f', -1, 64)
		}
		v := p.Ask(withDefault(f.label, def))
		if v == "" {
			continue
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return models.Listing{}, fmt.Errorf("%w: %s must be a number", models.ErrValidation, strings.ToLower(f.label))
		}
		*f.dst = &x
	}
	return cur, nil
}

func withDefault(label, cur string) string {
	if cur == "" {
		return label
	}
	return fmt.Sprintf("%s [%s]", label, cur)
}

// Paths asks for file paths separated by commas.
func (p *Prompter) Paths(label string) []string {
	var out []string
	for _, s := range strings.Split(p.Ask(label+" (comma separated, empty for none)"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ReadMedia loads every file in paths.
func ReadMedia(paths []string) ([][]byte, error) {
	out := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %q: %v", models.ErrValidation, path, err)
		}
		out = append(out, data)
	}
	return out, nil
}
