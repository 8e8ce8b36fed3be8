package catalog

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

const (
	DefaultResults = 100
	MaxResults     = 500
)

var ErrBadToken = errors.New("catalog: invalid pagination token")

// Document is a repo or raster record, passed through as stored.
type Document map[string]any

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	MaxResults      int      `json:"maxResults,omitempty"`
	UWIs            []string `json:"uwis"`
	Wordz           string   `json:"wordz,omitempty"`
	PaginationToken string   `json:"paginationToken,omitempty"`
}

type Metadata struct {
	ReturnedCount   int     `json:"returnedCount"`
	TotalRequested  int     `json:"totalRequested"`
	PaginationToken *string `json:"paginationToken"`
	GeneratedAt     string  `json:"generatedAt"`
}

// NextToken returns the token for the following page, or "" on the last one.
func (m Metadata) NextToken() string {
	if m.PaginationToken == nil {
		return ""
	}
	return *m.PaginationToken
}

type SearchResponse struct {
	Data     []Document `json:"data"`
	Metadata Metadata   `json:"metadata"`
}

// PageToken is where a search stopped. Clients treat its encoded form as
// opaque.
type PageToken struct {
	LastEvaluatedKey int64  `json:"last_evaluated_key"`
	UWIPrefix        string `json:"uwi_prefix"`
}

func (p PageToken) Encode() string {
	data, _ := json.Marshal(p)
	return base64.StdEncoding.EncodeToString(data)
}

func DecodeToken(s string) (PageToken, error) {
	var p PageToken
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return p, ErrBadToken
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.UWIPrefix == "" {
		return PageToken{}, ErrBadToken
	}
	return p, nil
}

// ClampResults applies the default and the upper bound to a requested page size.
func ClampResults(n int) int {
	if n <= 0 {
		return DefaultResults
	}
	if n > MaxResults {
		return MaxResults
	}
	return n
}

// RasterQuerier returns up to limit rasters whose uwi starts with prefix,
// after the given key. more reports whether rows remain past last.
type RasterQuerier interface {
	QueryRasters(prefix, wordz string, after int64, limit int) (docs []Document, last int64, more bool, err error)
}

// Search walks the uwi prefixes in order, filling one page. A token resumes
// at the prefix and key where the previous page stopped.
func Search(q RasterQuerier, req SearchRequest, now time.Time) (SearchResponse, error) {
	limit := ClampResults(req.MaxResults)
	var resume PageToken
	if req.PaginationToken != "" {
		var err error
		if resume, err = DecodeToken(req.PaginationToken); err != nil {
			return SearchResponse{}, err
		}
	}

	data := make([]Document, 0)
	var next *PageToken
	for _, prefix := range req.UWIs {
		if resume.UWIPrefix != "" && prefix != resume.UWIPrefix {
			continue
		}
		after := resume.LastEvaluatedKey
		resume = PageToken{}

		if len(data) >= limit {
			next = &PageToken{UWIPrefix: prefix}
			break
		}
		docs, last, more, err := q.QueryRasters(prefix, req.Wordz, after, limit-len(data))
		if err != nil {
			return SearchResponse{}, err
		}
		data = append(data, docs...)
		if more {
			next = &PageToken{UWIPrefix: prefix, LastEvaluatedKey: last}
			break
		}
	}

	md := Metadata{
		ReturnedCount:  len(data),
		TotalRequested: limit,
		GeneratedAt:    now.UTC().Format(time.RFC3339),
	}
	if next != nil {
		tok := next.Encode()
		md.PaginationToken = &tok
	}
	return SearchResponse{Data: data, Metadata: md}, nil
}

// DisplayKeys are the raster fields shown in result listings.
var DisplayKeys = []string{
	"sk",
	"uwi",
	"calib_checksum",
	"calib_file_name",
	"calib_log_depth_type",
	"calib_log_depth_unit",
	"calib_segment_base_depth",
	"calib_segment_name",
	"calib_segment_top_depth",
	"calib_type",
	"calib_vault_fs_path",
	"raster_checksum",
	"raster_file_name",
	"raster_vault_fs_path",
	"well_county",
	"well_name",
	"well_state",
}

// Summarize keeps only the DisplayKeys present in d.
func Summarize(d Document) Document {
	out := make(Document, len(DisplayKeys))
	for _, k := range DisplayKeys {
		if v, ok := d[k]; ok {
			out[k] = v
		}
	}
	return out
}
