// Package crawl defines the crawl record handed to the persistence layer and
// the small collaborator interfaces shared across subsystems.
package crawl

import "strings"

// AnnotationUnwritten prefixes every annotation explaining why a record was not written.
const AnnotationUnwritten = "unwritten"

// Record is a fully fetched crawl result. It is built upstream once per fetched
// URL and is not retained by the persistence layer after processing.
type Record struct {
	URL            string `json:"url"`
	FetchStatus    int    `json:"fetch_status"`
	IP             string `json:"ip,omitempty"`
	PathFromSeed   string `json:"path_from_seed,omitempty"`
	Via            string `json:"via,omitempty"`
	SourceTag      string `json:"source_tag,omitempty"`
	ContentType    string `json:"content_type,omitempty"`
	Request        []byte `json:"request,omitempty"`
	ResponseHeader []byte `json:"response_header,omitempty"`
	Content        []byte `json:"content,omitempty"`
	// ContentSize is the size reported by the fetcher. When zero the length of
	// Content is used instead.
	ContentSize int64 `json:"content_size,omitempty"`
	// RecordedSize is the total number of bytes recorded for the exchange.
	RecordedSize int64 `json:"recorded_size,omitempty"`

	annotations []string
	failures    []error
}

// Size returns the content size used for size limits.
func (r *Record) Size() int64 {
	if r.ContentSize > 0 {
		return r.ContentSize
	}
	return int64(len(r.Content))
}

// Annotate appends a free-form annotation for later inspection.
func (r *Record) Annotate(annotation string) {
	annotation = strings.TrimSpace(annotation)
	if annotation == "" {
		return
	}
	r.annotations = append(r.annotations, annotation)
}

// Annotations returns a copy of the record annotations.
func (r *Record) Annotations() []string {
	return append([]string(nil), r.annotations...)
}

// AddFailure records a non-fatal failure against the record.
func (r *Record) AddFailure(err error) {
	if err == nil {
		return
	}
	r.failures = append(r.failures, err)
}

// NonFatalFailures returns a copy of the failures recorded so far.
func (r *Record) NonFatalFailures() []error {
	return append([]error(nil), r.failures...)
}
