package http

import (
	"context"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/swyppy/internal/logger"
	"github.com/atinyakov/swyppy/internal/models"
	"github.com/atinyakov/swyppy/internal/service"
)

// maxUploadMemory is how much of a multipart body is kept in memory;
// the rest spills to temp files.
const maxUploadMemory = 32 << 20

// ListingService defines the listing operations the handlers need.
type ListingService interface {
	Create(ctx context.Context, draft models.Listing, images, videos [][]byte, progress service.ProgressFunc) (string, error)
	FetchAll(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, id string, fields models.Listing, newImage []byte) error
	Search(q string) []models.Listing
	FilterByPriceRange(lo, hi float64) []models.Listing
	FilterByBedrooms(min int) []models.Listing
	FilterByLocation(loc string) []models.Listing
	ByID(id string) (models.Listing, bool)
	All() []models.Listing
	BNB() []models.Listing
	Apartments() []models.Listing
	Counts() service.Counts
}

// ListingHandler serves browsing for everyone and writes for admins.
type ListingHandler struct {
	Listings ListingService
	Jobs     *UploadJobs
	Log      *zap.Logger
}

// List handles GET /api/listings. Query parameters narrow the result and
// combine with AND: q, category, minPrice, maxPrice, minBedrooms, location.
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var base []models.Listing
	switch c := models.Category(q.Get("category")); {
	case c == "":
		base = h.Listings.All()
	case c == models.CategoryBNB:
		base = h.Listings.BNB()
	case c == models.CategoryApartment:
		base = h.Listings.Apartments()
	default:
		http.Error(w, fmt.Sprintf("unknown category %q", c), http.StatusBadRequest)
		return
	}

	var keep []map[string]bool
	if s := q.Get("q"); strings.TrimSpace(s) != "" {
		keep = append(keep, idSet(h.Listings.Search(s)))
	}
	if q.Has("minPrice") || q.Has("maxPrice") {
		lo, err := floatParam(q.Get("minPrice"), 0)
		if err != nil {
			http.Error(w, "invalid minPrice", http.StatusBadRequest)
			return
		}
		hi, err := floatParam(q.Get("maxPrice"), math.Inf(1))
		if err != nil {
			http.Error(w, "invalid maxPrice", http.StatusBadRequest)
			return
		}
		keep = append(keep, idSet(h.Listings.FilterByPriceRange(lo, hi)))
	}
	if s := q.Get("minBedrooms"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid minBedrooms", http.StatusBadRequest)
			return
		}
		keep = append(keep, idSet(h.Listings.FilterByBedrooms(n)))
	}
	if s := q.Get("location"); s != "" {
		keep = append(keep, idSet(h.Listings.FilterByLocation(s)))
	}

	out := make([]models.Listing, 0, len(base))
	for _, l := range base {
		ok := true
		for _, set := range keep {
			if !set[l.ID] {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, l)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func idSet(ls []models.Listing) map[string]bool {
	set := make(map[string]bool, len(ls))
	for _, l := range ls {
		set[l.ID] = true
	}
	return set
}

func floatParam(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

// Get handles GET /api/listings/{id}.
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, ok := h.Listings.ByID(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "listing not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Stats handles GET /api/listings/stats.
func (h *ListingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Listings.Counts())
}

// Refresh handles POST /api/listings/refresh.
func (h *ListingHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Listings.FetchAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Listings.Counts())
}

// Create handles POST /api/listings. The multipart body carries the
// listing fields plus "images" and "videos" files. Uploading runs in the
// background; the response carries a job id for GET /api/uploads/{jobId}.
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	draft, err := listingFromForm(r.MultipartForm)
	if err != nil {
		writeError(w, err)
		return
	}
	images, err := readFiles(r.MultipartForm.File["images"])
	if err != nil {
		http.Error(w, "failed to read images", http.StatusBadRequest)
		return
	}
	videos, err := readFiles(r.MultipartForm.File["videos"])
	if err != nil {
		http.Error(w, "failed to read videos", http.StatusBadRequest)
		return
	}
	if err := draft.ValidateDraft(len(images) + len(videos)); err != nil {
		writeError(w, err)
		return
	}

	job := h.Jobs.Begin(len(images) + len(videos))
	ctx := context.WithoutCancel(r.Context())
	go h.runCreate(ctx, job.ID, draft, images, videos)

	writeJSON(w, http.StatusAccepted, job)
}

func (h *ListingHandler) runCreate(ctx context.Context, jobID string, draft models.Listing, images, videos [][]byte) {
	id, err := h.Listings.Create(ctx, draft, images, videos, func(done, total int) {
		h.Jobs.Progress(jobID, done, total)
	})
	if err != nil {
		logger.OrNop(h.Log).Error("listing upload failed", zap.String("job_id", jobID), zap.Error(err))
		h.Jobs.Fail(jobID, models.Message(err))
		return
	}
	if err := h.Listings.FetchAll(ctx); err != nil {
		logger.OrNop(h.Log).Warn("refresh after create failed", zap.String("listing_id", id), zap.Error(err))
	}
	h.Jobs.Finish(jobID, id)
}

// UploadStatus handles GET /api/uploads/{jobId}.
func (h *ListingHandler) UploadStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := h.Jobs.Get(chi.URLParam(r, "jobId"))
	if !ok {
		http.Error(w, "upload job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Update handles PUT /api/listings/{id} with the listing fields and an
// optional replacement "image" file.
func (h *ListingHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	fields, err := listingFromForm(r.MultipartForm)
	if err != nil {
		writeError(w, err)
		return
	}

	var image []byte
	if files := r.MultipartForm.File["image"]; len(files) > 0 {
		data, err := readFiles(files[:1])
		if err != nil {
			http.Error(w, "failed to read image", http.StatusBadRequest)
			return
		}
		image = data[0]
	}

	if err := h.Listings.Update(r.Context(), id, fields, image); err != nil {
		writeError(w, err)
		return
	}
	l, ok := h.Listings.ByID(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Delete handles DELETE /api/listings/{id}.
func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Listings.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func listingFromForm(form *multipart.Form) (models.Listing, error) {
	get := func(name string) string {
		if v := form.Value[name]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	l := models.Listing{
		Name:           get("name"),
		AgentName:      get("agentName"),
		AgentPhone:     get("agentPhone"),
		AgentEmail:     get("agentEmail"),
		Description:    get("description"),
		Category:       models.Category(get("category")),
		Price:          get("price"),
		Bedrooms:       get("bedrooms"),
		Bathrooms:      get("bathrooms"),
		Location:       get("location"),
		Amenities:      get("amenities"),
		WhatsappNumber: get("whatsappNumber"),
	}
	for name, dst := range map[string]**float64{"latitude": &l.Latitude, "longitude": &l.Longitude} {
		s := get(name)
		if s == "" {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Listing{}, fmt.Errorf("%w: %s must be a number", models.ErrValidation, name)
		}
		*dst = &f
	}
	return l, nil
}

func readFiles(headers []*multipart.FileHeader) ([][]byte, error) {
	out := make([][]byte, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}
