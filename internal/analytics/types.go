package analytics

import "time"

// Story is a catalog entry.
type Story struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Filename  string    `json:"filename"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewStory is the input for creating a catalog entry.
type NewStory struct {
	Title    string
	Filename string
	Content  string
}

// ReadEvent is one occurrence of a reader opening a story. Events are never
// updated or deleted once stored.
type ReadEvent struct {
	ID             int64     `json:"id"`
	StoryID        int64     `json:"story_id"`
	UserIdentifier string    `json:"user_identifier"`
	ReadAt         time.Time `json:"read_at"`
	UserAgent      *string   `json:"user_agent,omitempty"`
	Referrer       *string   `json:"referrer,omitempty"`
}

type StorySummary struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	ReadCount     int64  `json:"read_count"`
	UniqueReaders int64  `json:"unique_readers"`
}

// TimeSeriesPoint is one calendar day of reads. Date is YYYY-MM-DD.
type TimeSeriesPoint struct {
	Date          string `json:"date"`
	Reads         int64  `json:"reads"`
	UniqueReaders int64  `json:"unique_readers"`
}

type ReferrerCount struct {
	Referrer string `json:"referrer"`
	Count    int64  `json:"count"`
}

type ReaderDistributionRow struct {
	UserIdentifier string    `json:"user_identifier"`
	ReadCount      int64     `json:"read_count"`
	FirstRead      time.Time `json:"first_read"`
	LastRead       time.Time `json:"last_read"`
}

// Totals holds the window counts. TotalStories is only filled for the
// catalog-wide variant, the read bounds only for the per-story one.
type Totals struct {
	TotalReads    int64
	UniqueReaders int64
	TotalStories  int64
	FirstReadAt   *time.Time
	LastReadAt    *time.Time
}

// SummaryReport is the catalog-wide response body.
type SummaryReport struct {
	TotalReads    int64             `json:"total_reads"`
	UniqueReaders int64             `json:"unique_readers"`
	TotalStories  int64             `json:"total_stories"`
	TopStories    []StorySummary    `json:"top_stories"`
	TimeSeries    []TimeSeriesPoint `json:"time_series"`
	Period        string            `json:"period"`

	degraded bool
}

// Incomplete reports whether a sub-query degraded while building r.
func (r *SummaryReport) Incomplete() bool { return r.degraded }

// StoryReport is the single-story response body.
type StoryReport struct {
	StoryID            int64                   `json:"story_id"`
	Title              string                  `json:"title"`
	TotalReads         int64                   `json:"total_reads"`
	UniqueReaders      int64                   `json:"unique_readers"`
	FirstReadAt        *time.Time              `json:"first_read_at"`
	LastReadAt         *time.Time              `json:"last_read_at"`
	AvgReadsPerDay     float64                 `json:"avg_reads_per_day"`
	ReadTrend          []TimeSeriesPoint       `json:"read_trend"`
	TopReferrers       []ReferrerCount         `json:"top_referrers"`
	ReaderDistribution []ReaderDistributionRow `json:"reader_distribution"`
	Period             string                  `json:"period"`

	degraded bool
}

func (r *StoryReport) Incomplete() bool { return r.degraded }
