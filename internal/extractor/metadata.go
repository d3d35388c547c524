package extractor

// Metadata is the descriptive information the extractor reports for a URL.
type Metadata struct {
	ID          string
	Title       string
	Author      string
	Duration    float64
	Thumbnail   string
	Description string
	SourceURL   string
	Extractor   string
	Filename    string
}

// rawOutput mirrors the JSON document the extractor prints in metadata mode.
type rawOutput struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Uploader    string  `json:"uploader"`
	Channel     string  `json:"channel"`
	Duration    float64 `json:"duration"`
	Thumbnail   string  `json:"thumbnail"`
	Thumbnails  []thumb `json:"thumbnails"`
	WebpageURL  string  `json:"webpage_url"`
	Extractor   string  `json:"extractor"`
	Description string  `json:"description"`
	Filename    string  `json:"_filename"`
}

type thumb struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ToMetadata flattens the raw document into the fields the pipeline keeps.
func (o *rawOutput) ToMetadata() *Metadata {
	m := &Metadata{
		ID:          o.ID,
		Title:       o.Title,
		Author:      o.Uploader,
		Duration:    o.Duration,
		Thumbnail:   o.Thumbnail,
		Description: o.Description,
		SourceURL:   o.WebpageURL,
		Extractor:   o.Extractor,
		Filename:    o.Filename,
	}

	if m.Author == "" {
		m.Author = o.Channel
	}

	// Thumbnail lists are ordered worst to best.
	if m.Thumbnail == "" && len(o.Thumbnails) > 0 {
		m.Thumbnail = o.Thumbnails[len(o.Thumbnails)-1].URL
	}

	return m
}

// Fields returns the metadata as a map suitable for merging into a job
// record. Absent values are omitted rather than set to zero values.
func (m *Metadata) Fields() map[string]any {
	if m == nil {
		return nil
	}

	fields := make(map[string]any)
	if m.Title != "" {
		fields["title"] = m.Title
	}
	if m.Author != "" {
		fields["author"] = m.Author
	}
	if m.Duration > 0 {
		fields["duration"] = m.Duration
	}
	if m.Thumbnail != "" {
		fields["thumbnail"] = m.Thumbnail
	}
	if m.Description != "" {
		fields["description"] = m.Description
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
