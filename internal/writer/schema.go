package writer

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/JakeFAU/crawlstore/internal/store"
)

// ErrInvalidSchema reports an unusable table or column layout.
var ErrInvalidSchema = errors.New("invalid schema")

var validFamily = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Columns names the qualifiers used for each logical field.
type Columns struct {
	Content      string `mapstructure:"content"`
	IP           string `mapstructure:"ip"`
	PathFromSeed string `mapstructure:"path_from_seed"`
	Via          string `mapstructure:"via"`
	URL          string `mapstructure:"url"`
	Request      string `mapstructure:"request"`
	Response     string `mapstructure:"response"`
	MimeType     string `mapstructure:"mime_type"`
	Hash         string `mapstructure:"hash"`
	Status       string `mapstructure:"status"`
	SourceTag    string `mapstructure:"source_tag"`
}

// Schema is the physical layout of the URL and content tables. It is
// immutable once a Writer has been opened with it.
type Schema struct {
	URLTable      string  `mapstructure:"url_table"`
	ContentTable  string  `mapstructure:"content_table"`
	URLFamily     string  `mapstructure:"url_family"`
	ContentFamily string  `mapstructure:"content_family"`
	Columns       Columns `mapstructure:"columns"`
}

// DefaultSchema returns the short default identifiers.
func DefaultSchema() Schema {
	return Schema{
		URLTable:      "url",
		ContentTable:  "content",
		URLFamily:     "u",
		ContentFamily: "c",
		Columns: Columns{
			Content:      "r",
			IP:           "i",
			PathFromSeed: "p",
			Via:          "v",
			URL:          "u",
			Request:      "req",
			Response:     "rsp",
			MimeType:     "m",
			Hash:         "h",
			Status:       "s",
			SourceTag:    "st",
		},
	}
}

// Validate checks that every identifier is set and usable by all backends.
func (s Schema) Validate() error {
	for _, name := range []string{s.URLTable, s.ContentTable} {
		if err := store.ValidateTableName(name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
	}
	for _, family := range []string{s.URLFamily, s.ContentFamily} {
		if !validFamily.MatchString(family) {
			return fmt.Errorf("%w: column family %q", ErrInvalidSchema, family)
		}
	}
	c := s.Columns
	columns := map[string]string{
		"content":        c.Content,
		"ip":             c.IP,
		"path_from_seed": c.PathFromSeed,
		"via":            c.Via,
		"url":            c.URL,
		"request":        c.Request,
		"response":       c.Response,
		"mime_type":      c.MimeType,
		"hash":           c.Hash,
		"status":         c.Status,
		"source_tag":     c.SourceTag,
	}
	for field, column := range columns {
		if column == "" {
			return fmt.Errorf("%w: column for %s is empty", ErrInvalidSchema, field)
		}
	}
	return nil
}
