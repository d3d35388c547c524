package downloader

// ProgressEvent reports byte-level progress for one job's download.
type ProgressEvent struct {
	JobID      string  `json:"jobId"`
	Percent    int     `json:"percent"`
	Downloaded int64   `json:"downloaded"`
	Total      int64   `json:"total"`
	Speed      float64 `json:"speed"`
	ETA        float64 `json:"eta"`
}

// ProgressFunc receives throttled progress events.
type ProgressFunc func(ProgressEvent)

// ProgressSink throttles raw strategy progress into integer-percent events:
// an event goes out only when the integer percent advances, so listeners see
// a strictly increasing stream with no duplicates.
type ProgressSink struct {
	jobID string
	emit  ProgressFunc
	last  int
}

// NewProgressSink creates a sink for one download call.
func NewProgressSink(jobID string, emit ProgressFunc) *ProgressSink {
	return &ProgressSink{jobID: jobID, emit: emit, last: -1}
}

// Report forwards a progress sample if it advances the integer percent.
func (s *ProgressSink) Report(percent float64, downloaded, total int64, speed, eta float64) {
	if s.emit == nil {
		return
	}

	p := int(percent)
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if p <= s.last {
		return
	}
	s.last = p

	s.emit(ProgressEvent{
		JobID:      s.jobID,
		Percent:    p,
		Downloaded: downloaded,
		Total:      total,
		Speed:      speed,
		ETA:        eta,
	})
}
