package writer

import (
	"encoding/binary"
	"strings"

	"github.com/JakeFAU/crawlstore/internal/crawl"
	"github.com/JakeFAU/crawlstore/internal/store"
	"github.com/JakeFAU/crawlstore/internal/urlkey"
)

// EncodeStatus renders a fetch status as a 4-byte big-endian integer.
func EncodeStatus(status int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(int32(status)))
	return b
}

// DecodeStatus is the inverse of EncodeStatus.
func DecodeStatus(b []byte) (int, bool) {
	if len(b) != 4 {
		return 0, false
	}
	return int(int32(binary.BigEndian.Uint32(b))), true
}

// BuildURLPut assembles the URL-table row for rec, minus the content hash.
// Optional string fields are written only when non-blank; via is stored as
// its own row key.
func BuildURLPut(s Schema, rec *crawl.Record, ip string) *store.Put {
	c := s.Columns
	family := s.URLFamily
	put := store.NewPut(urlkey.Encode(rec.URL)).
		Add(family, []byte(c.Status), EncodeStatus(rec.FetchStatus)).
		Add(family, []byte(c.URL), []byte(rec.URL)).
		Add(family, []byte(c.IP), []byte(ip))

	if path := strings.TrimSpace(rec.PathFromSeed); path != "" {
		put.Add(family, []byte(c.PathFromSeed), []byte(path))
	}
	if via := strings.TrimSpace(rec.Via); via != "" {
		put.Add(family, []byte(c.Via), urlkey.Encode(via))
	}
	if rec.SourceTag != "" {
		put.Add(family, []byte(c.SourceTag), []byte(rec.SourceTag))
	}
	if rec.ContentType != "" {
		put.Add(family, []byte(c.MimeType), []byte(rec.ContentType))
	}
	if len(rec.Request) > 0 {
		put.Add(family, []byte(c.Request), rec.Request)
	}
	if len(rec.ResponseHeader) > 0 {
		put.Add(family, []byte(c.Response), rec.ResponseHeader)
	}
	return put
}
