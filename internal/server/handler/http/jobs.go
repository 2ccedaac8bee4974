package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// Upload job states.
const (
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// UploadJob is the progress of one asynchronous listing creation.
type UploadJob struct {
	ID        string `json:"jobId"`
	State     string `json:"state"`
	Done      int    `json:"done"`
	Total     int    `json:"total"`
	ListingID string `json:"listingId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// UploadJobs keeps job progress for a limited time after the last update.
type UploadJobs struct {
	cache *ttlcache.Cache[string, UploadJob]
}

// NewUploadJobs creates a tracker whose entries expire ttl after their
// last update. Call Start to run expiry in the background.
func NewUploadJobs(ttl time.Duration) *UploadJobs {
	return &UploadJobs{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, UploadJob](ttl),
			ttlcache.WithDisableTouchOnHit[string, UploadJob](),
		),
	}
}

// Start runs the expiry loop until Stop.
func (j *UploadJobs) Start() { go j.cache.Start() }

// Stop ends the expiry loop.
func (j *UploadJobs) Stop() { j.cache.Stop() }

// Begin registers a running job for total files and returns it.
func (j *UploadJobs) Begin(total int) UploadJob {
	job := UploadJob{ID: uuid.NewString(), State: JobRunning, Total: total}
	j.cache.Set(job.ID, job, ttlcache.DefaultTTL)
	return job
}

// Progress records done of total finished uploads.
func (j *UploadJobs) Progress(id string, done, total int) {
	j.update(id, func(job *UploadJob) {
		job.Done, job.Total = done, total
	})
}

// Finish marks the job done with the new listing id.
func (j *UploadJobs) Finish(id, listingID string) {
	j.update(id, func(job *UploadJob) {
		job.State = JobDone
		job.Done = job.Total
		job.ListingID = listingID
	})
}

// Fail marks the job failed with a user-facing message.
func (j *UploadJobs) Fail(id, msg string) {
	j.update(id, func(job *UploadJob) {
		job.State = JobFailed
		job.Error = msg
	})
}

// Get returns the job if it has not expired.
func (j *UploadJobs) Get(id string) (UploadJob, bool) {
	item := j.cache.Get(id)
	if item == nil {
		return UploadJob{}, false
	}
	return item.Value(), true
}

func (j *UploadJobs) update(id string, fn func(*UploadJob)) {
	item := j.cache.Get(id)
	if item == nil {
		return
	}
	job := item.Value()
	fn(&job)
	j.cache.Set(id, job, ttlcache.DefaultTTL)
}
