// Package service holds the listing repository and the auth gateway.
// Both depend on small consumer-side interfaces so storage, media hosting
// and identity providers can be swapped or faked.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/swyppy/internal/models"
	"github.com/atinyakov/swyppy/internal/repository"
)

// Tree roots.
const (
	PropertiesRoot = "Properties"
	UsersRoot      = "Users"
)

// Tree is the remote record store.
type Tree interface {
	// NewKey returns a fresh, chronologically ordered child key.
	NewKey(ctx context.Context, root string) (string, error)
	// Set replaces the value at root/key.
	Set(ctx context.Context, root, key string, v any) error
	// Get returns the value at root/key or models.ErrNotFound.
	Get(ctx context.Context, root, key string) (json.RawMessage, error)
	// Children lists root's children ordered by key.
	Children(ctx context.Context, root string) ([]repository.Node, error)
	// ChildrenWhere lists children whose field equals value, ordered by key.
	ChildrenWhere(ctx context.Context, root, field, value string) ([]repository.Node, error)
	// Remove deletes root/key; a missing key is not an error.
	Remove(ctx context.Context, root, key string) error
}

// MediaUploader turns file bytes into a durable URL.
type MediaUploader interface {
	Upload(ctx context.Context, data []byte, kind models.MediaKind) (string, error)
}

// ProgressFunc receives the number of finished uploads after each file.
type ProgressFunc func(done, total int)

// Counts summarises the projections for the admin dashboard.
type Counts struct {
	All        int `json:"all"`
	BNB        int `json:"bnb"`
	Apartments int `json:"apartments"`
}

// ListingService keeps the "all", BNB and Apartment projections of the
// Properties root and performs listing writes.
//
// Fetches, deletes, updates and the write phase of creates run one at a
// time under txMu. Readers take mu and always receive copies.
type ListingService struct {
	tree  Tree
	media MediaUploader
	log   *zap.Logger
	now   func() time.Time

	txMu sync.Mutex

	mu         sync.RWMutex
	all        []models.Listing
	bnb        []models.Listing
	apartments []models.Listing
}

// NewListingService constructs a ListingService. A nil logger discards output.
func NewListingService(tree Tree, media MediaUploader, log *zap.Logger) *ListingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ListingService{tree: tree, media: media, log: log, now: time.Now}
}

type mediaItem struct {
	data []byte
	kind models.MediaKind
}

// Create uploads images then videos one by one, then writes the listing
// under a new key in a single put and returns that key. Projections are
// left alone; the next fetch picks the listing up.
//
// Media uploaded before a failure stays on the media host and is logged.
func (s *ListingService) Create(ctx context.Context, draft models.Listing, images, videos [][]byte, progress ProgressFunc) (string, error) {
	items := make([]mediaItem, 0, len(images)+len(videos))
	for _, b := range images {
		items = append(items, mediaItem{data: b, kind: models.MediaImage})
	}
	for _, b := range videos {
		items = append(items, mediaItem{data: b, kind: models.MediaVideo})
	}
	total := len(items)

	urls := make([]string, 0, total)
	kinds := make([]models.MediaKind, 0, total)
	for i, it := range items {
		url, err := s.media.Upload(ctx, it.data, it.kind)
		if err != nil {
			s.logOrphans(urls)
			if len(urls) > 0 {
				return "", fmt.Errorf("%w: %w: %d of %d media uploaded, %s %d failed: %w",
					models.ErrUploadFailed, models.ErrPartialUpload, len(urls), total, it.kind, i+1, err)
			}
			return "", fmt.Errorf("%w: %s %d of %d: %w", models.ErrUploadFailed, it.kind, i+1, total, err)
		}
		urls = append(urls, url)
		kinds = append(kinds, it.kind)
		if progress != nil {
			progress(len(urls), total)
		}
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	key, err := s.tree.NewKey(ctx, PropertiesRoot)
	if err != nil {
		s.logOrphans(urls)
		return "", fmt.Errorf("%w: new key: %w", models.ErrUploadFailed, err)
	}

	rec := draft
	rec.ID = key
	rec.MediaURLs = urls
	rec.MediaTypes = kinds
	rec.ImageURL = models.PrimaryImageURL(urls, kinds)
	rec.CreatedAt = 0

	if err := s.tree.Set(ctx, PropertiesRoot, key, rec); err != nil {
		s.logOrphans(urls)
		return "", fmt.Errorf("%w: save listing: %w", models.ErrUploadFailed, err)
	}

	s.log.Info("listing created", zap.String("listing_id", key), zap.Int("media", total))
	return key, nil
}

func (s *ListingService) logOrphans(urls []string) {
	if len(urls) == 0 {
		return
	}
	s.log.Warn("uploaded media left unreferenced", zap.Strings("urls", urls))
}

// FetchAll rebuilds all three projections from the remote root in one swap.
// Malformed records are logged and skipped. On failure the projections
// keep their previous contents.
func (s *ListingService) FetchAll(ctx context.Context) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.fetchAllLocked(ctx)
}

func (s *ListingService) fetchAllLocked(ctx context.Context) error {
	nodes, err := s.tree.Children(ctx, PropertiesRoot)
	if err != nil {
		s.log.Error("failed to load properties", zap.Error(err))
		return fmt.Errorf("%w: %w", models.ErrFetchFailed, err)
	}

	all := make([]models.Listing, 0, len(nodes))
	var bnb, apartments []models.Listing
	for _, l := range s.decodeNodes(nodes) {
		all = append(all, l)
		switch l.Category {
		case models.CategoryBNB:
			bnb = append(bnb, l)
		case models.CategoryApartment:
			apartments = append(apartments, l)
		}
	}

	s.mu.Lock()
	s.all, s.bnb, s.apartments = all, bnb, apartments
	s.mu.Unlock()

	s.log.Debug("properties loaded", zap.Int("total", len(all)),
		zap.Int("bnb", len(bnb)), zap.Int("apartments", len(apartments)))
	return nil
}

// FetchByCategory refreshes only the projection of category using the
// server-side equality filter.
func (s *ListingService) FetchByCategory(ctx context.Context, category models.Category) error {
	if !category.Known() {
		return fmt.Errorf("%w: unknown category %q", models.ErrValidation, category)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	nodes, err := s.tree.ChildrenWhere(ctx, PropertiesRoot, "category", string(category))
	if err != nil {
		s.log.Error("failed to load properties", zap.String("category", string(category)), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", models.ErrFetchFailed, category, err)
	}

	var fresh []models.Listing
	for _, l := range s.decodeNodes(nodes) {
		// the filter is the server's; keep the projection honest anyway
		if l.Category == category {
			fresh = append(fresh, l)
		}
	}

	s.mu.Lock()
	if category == models.CategoryBNB {
		s.bnb = fresh
	} else {
		s.apartments = fresh
	}
	s.mu.Unlock()
	return nil
}

func (s *ListingService) decodeNodes(nodes []repository.Node) []models.Listing {
	out := make([]models.Listing, 0, len(nodes))
	for _, n := range nodes {
		l, err := decodeListing(n.Key, n.Value)
		if err != nil {
			s.log.Warn("skipping malformed listing", zap.String("key", n.Key), zap.Error(err))
			continue
		}
		out = append(out, l)
	}
	return out
}

// Delete removes the remote record and then purges id from every
// projection. Deleting an id that is not loaded is not an error.
func (s *ListingService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty listing id", models.ErrValidation)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := s.tree.Remove(ctx, PropertiesRoot, id); err != nil {
		s.log.Error("property not deleted", zap.String("listing_id", id), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", models.ErrDeleteFailed, id, err)
	}

	drop := func(l models.Listing) bool { return l.ID == id }
	s.mu.Lock()
	s.all = slices.DeleteFunc(s.all, drop)
	s.bnb = slices.DeleteFunc(s.bnb, drop)
	s.apartments = slices.DeleteFunc(s.apartments, drop)
	s.mu.Unlock()

	s.log.Info("listing deleted", zap.String("listing_id", id))
	return nil
}

// Update overwrites the record at id with fields and a fresh createdAt,
// then refetches everything. A non-nil newImage is uploaded first and
// becomes imageUrl; otherwise the stored imageUrl is kept. Media lists
// are carried over from the stored record.
func (s *ListingService) Update(ctx context.Context, id string, fields models.Listing, newImage []byte) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty listing id", models.ErrValidation)
	}

	var imageURL string
	if newImage != nil {
		url, err := s.media.Upload(ctx, newImage, models.MediaImage)
		if err != nil {
			return fmt.Errorf("%w: %w", models.ErrUpdateFailed, err)
		}
		imageURL = url
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	rec := fields
	rec.ID = id
	rec.CreatedAt = s.now().UnixMilli()
	rec.MediaURLs, rec.MediaTypes, rec.ImageURL = nil, nil, ""
	prev, err := s.stored(ctx, id)
	if err != nil {
		if imageURL != "" {
			s.logOrphans([]string{imageURL})
		}
		return fmt.Errorf("%w: %s: %w", models.ErrUpdateFailed, id, err)
	}
	rec.MediaURLs = prev.MediaURLs
	rec.MediaTypes = prev.MediaTypes
	rec.ImageURL = prev.ImageURL
	if imageURL != "" {
		rec.ImageURL = imageURL
	}

	if err := s.tree.Set(ctx, PropertiesRoot, id, rec); err != nil {
		if imageURL != "" {
			s.logOrphans([]string{imageURL})
		}
		return fmt.Errorf("%w: %s: %w", models.ErrUpdateFailed, id, err)
	}
	s.log.Info("listing updated", zap.String("listing_id", id))

	if err := s.fetchAllLocked(ctx); err != nil {
		// the write landed; only the resync failed
		s.log.Warn("refresh after update failed", zap.String("listing_id", id), zap.Error(err))
	}
	return nil
}

// stored reads the current record at id. A missing record yields an empty
// listing; a malformed one falls back to the loaded copy, if any.
func (s *ListingService) stored(ctx context.Context, id string) (models.Listing, error) {
	raw, err := s.tree.Get(ctx, PropertiesRoot, id)
	if errors.Is(err, models.ErrNotFound) {
		return models.Listing{}, nil
	}
	if err != nil {
		return models.Listing{}, fmt.Errorf("read previous record: %w", err)
	}
	prev, err := decodeListing(id, raw)
	if err != nil {
		s.log.Warn("previous record unreadable", zap.String("listing_id", id), zap.Error(err))
		prev, _ = s.ByID(id)
	}
	return prev, nil
}

// Search matches q case-insensitively against name, agent name, location,
// category and price. A blank q returns the whole "all" projection.
func (s *ListingService) Search(q string) []models.Listing {
	if strings.TrimSpace(q) == "" {
		return s.All()
	}
	needle := strings.ToLower(q)
	return s.filter(func(l models.Listing) bool {
		for _, f := range []string{l.Name, l.AgentName, l.Location, string(l.Category), l.Price} {
			if strings.Contains(strings.ToLower(f), needle) {
				return true
			}
		}
		return false
	})
}

// FilterByPriceRange keeps listings priced within [lo, hi].
// Prices that are not numbers count as 0.
func (s *ListingService) FilterByPriceRange(lo, hi float64) []models.Listing {
	return s.filter(func(l models.Listing) bool {
		p := parsePrice(l.Price)
		return p >= lo && p <= hi
	})
}

// FilterByBedrooms keeps listings with at least min bedrooms.
// Counts that are not integers count as 0.
func (s *ListingService) FilterByBedrooms(min int) []models.Listing {
	return s.filter(func(l models.Listing) bool {
		return parseCount(l.Bedrooms) >= min
	})
}

// FilterByLocation keeps listings whose location contains loc, ignoring case.
func (s *ListingService) FilterByLocation(loc string) []models.Listing {
	needle := strings.ToLower(loc)
	return s.filter(func(l models.Listing) bool {
		return strings.Contains(strings.ToLower(l.Location), needle)
	})
}

// ByID looks id up in the "all" projection.
func (s *ListingService) ByID(id string) (models.Listing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.all {
		if l.ID == id {
			return l, true
		}
	}
	return models.Listing{}, false
}

// All returns a copy of the "all" projection.
func (s *ListingService) All() []models.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.all)
}

// BNB returns a copy of the BNB projection.
func (s *ListingService) BNB() []models.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.bnb)
}

// Apartments returns a copy of the Apartment projection.
func (s *ListingService) Apartments() []models.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.apartments)
}

// Counts returns the projection sizes.
func (s *ListingService) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{All: len(s.all), BNB: len(s.bnb), Apartments: len(s.apartments)}
}

func (s *ListingService) filter(keep func(models.Listing) bool) []models.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Listing, 0, len(s.all))
	for _, l := range s.all {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func parsePrice(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseCount(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// StartAutoRefresh calls FetchAll every interval until ctx is done.
// Failures are logged and retried on the next tick.
func StartAutoRefresh(ctx context.Context, svc *ListingService, interval time.Duration, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.FetchAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("auto refresh failed", zap.Error(err))
				}
			}
		}
	}()
}
