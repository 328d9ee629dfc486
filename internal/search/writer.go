package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/mongoadmin/indexsync/internal/flatten"
	"github.com/mongoadmin/indexsync/internal/httpclient"
)

const (
	// DefaultPageSize is used when a search request does not set one
	DefaultPageSize = 20

	// MaxPageSize caps the page size of a search request
	MaxPageSize = 200

	// maxInnerHits bounds the highlighted pairs returned per hit
	maxInnerHits = 100
)

// Writer talks to one Elasticsearch cluster
type Writer struct {
	client httpclient.Client
}

// NewWriter creates a Writer on top of client
func NewWriter(client httpclient.Client) *Writer {
	return &Writer{client: client}
}

// Ping checks that the cluster answers
func (w *Writer) Ping(ctx context.Context) error {
	_, err := w.do(ctx, &httpclient.Request{Method: http.MethodGet, Path: "/"})
	return err
}

// Get returns the stored document for customID, or nil when there is none
func (w *Writer) Get(ctx context.Context, index, customID string) (*IndexedDocument, error) {
	req := &httpclient.Request{Method: http.MethodGet, Path: docPath(index, customID)}
	resp, err := w.send(ctx, req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		if isIndexNotFound(resp) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, index)
		}
		return nil, nil
	case !resp.IsSuccess():
		return nil, classify(resp, req)
	}

	body := gjson.ParseBytes(resp.Body)
	if !body.Get("found").Bool() {
		return nil, nil
	}
	return &IndexedDocument{
		ID:            body.Get("_id").String(),
		SeqNo:         body.Get("_seq_no").Int(),
		PrimaryTerm:   body.Get("_primary_term").Int(),
		UpdateVersion: body.Get("_source.updateVersion").Int(),
		Source: Source{
			DBName:   body.Get("_source.source.dbName").String(),
			CollName: body.Get("_source.source.collName").String(),
		},
	}, nil
}

// Exists reports whether the index holds a document for customID
func (w *Writer) Exists(ctx context.Context, index, customID string) (bool, error) {
	doc, err := w.Get(ctx, index, customID)
	if err != nil {
		if errors.Is(err, ErrIndexNotFound) {
			return false, nil
		}
		return false, err
	}
	return doc != nil, nil
}

// Upsert writes req unless the index already holds the same or a newer
// version. The write is conditional on the concurrency token read just
// before it, so a racing writer surfaces as ErrVersionConflict instead of
// overwriting a newer document.
func (w *Writer) Upsert(ctx context.Context, req UpsertRequest) (Outcome, error) {
	body, err := json.Marshal(Document{
		Flat:             nonNilPairs(req),
		UpdateVersion:    req.UpdateVersion,
		UpdateAt:         req.UpdateAt,
		UpdateAtTimeZone: req.UpdateAtTimeZone,
		Source:           req.Source,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}

	query := url.Values{}
	if !req.ForceReindex {
		stored, err := w.Get(ctx, req.Index, req.CustomID)
		if err != nil {
			return "", err
		}

		switch {
		case stored == nil:
			query.Set("op_type", "create")
		case stored.UpdateVersion > req.UpdateVersion:
			slog.Warn("Index holds a newer version, skipping write",
				"index", req.Index,
				"custom_id", req.CustomID,
				"stored_version", stored.UpdateVersion,
				"version", req.UpdateVersion)
			return OutcomeStale, nil
		case stored.UpdateVersion == req.UpdateVersion:
			slog.Debug("Index already holds this version",
				"index", req.Index,
				"custom_id", req.CustomID,
				"version", req.UpdateVersion)
			return OutcomeCurrent, nil
		default:
			query.Set("if_seq_no", strconv.FormatInt(stored.SeqNo, 10))
			query.Set("if_primary_term", strconv.FormatInt(stored.PrimaryTerm, 10))
		}
	}

	put := &httpclient.Request{
		Method: http.MethodPut,
		Path:   docPath(req.Index, req.CustomID),
		Query:  query,
		Body:   body,
	}
	if _, err := w.do(ctx, put); err != nil {
		return "", err
	}
	return OutcomeWritten, nil
}

// Delete removes customID unless the index holds a version newer than
// deleteVersion. A concurrent change between the read and the delete is
// reported as OutcomeConflict and leaves the index untouched.
func (w *Writer) Delete(ctx context.Context, index, customID string, deleteVersion int64) (Outcome, error) {
	stored, err := w.Get(ctx, index, customID)
	if err != nil {
		if errors.Is(err, ErrIndexNotFound) {
			return OutcomeNotFound, nil
		}
		return "", err
	}
	if stored == nil {
		return OutcomeNotFound, nil
	}
	if stored.UpdateVersion > deleteVersion {
		slog.Warn("Index holds a newer version, skipping delete",
			"index", index,
			"custom_id", customID,
			"stored_version", stored.UpdateVersion,
			"version", deleteVersion)
		return OutcomeStale, nil
	}

	req := &httpclient.Request{
		Method: http.MethodDelete,
		Path:   docPath(index, customID),
		Query: url.Values{
			"if_seq_no":       []string{strconv.FormatInt(stored.SeqNo, 10)},
			"if_primary_term": []string{strconv.FormatInt(stored.PrimaryTerm, 10)},
		},
	}
	resp, err := w.send(ctx, req)
	if err != nil {
		return "", err
	}

	switch {
	case resp.IsSuccess():
		return OutcomeDeleted, nil
	case resp.StatusCode == http.StatusNotFound:
		return OutcomeNotFound, nil
	case resp.StatusCode == http.StatusConflict:
		slog.Warn("Document changed during delete, leaving it in place",
			"index", index,
			"custom_id", customID,
			"version", deleteVersion)
		return OutcomeConflict, nil
	default:
		return "", classify(resp, req)
	}
}

// Count returns the number of documents in index, restricted to source when
// it is set
func (w *Writer) Count(ctx context.Context, index string, source *Source) (int64, error) {
	req := &httpclient.Request{Method: http.MethodGet, Path: "/" + url.PathEscape(index) + "/_count"}
	if source != nil {
		body, err := json.Marshal(map[string]any{
			"query": map[string]any{
				"bool": map[string]any{"filter": sourceFilter(source)},
			},
		})
		if err != nil {
			return 0, fmt.Errorf("failed to encode count query: %w", err)
		}
		req.Method = http.MethodPost
		req.Body = body
	}

	resp, err := w.do(ctx, req)
	if err != nil {
		return 0, err
	}
	return gjson.GetBytes(resp.Body, "count").Int(), nil
}

// Search runs a phrase query over the flattened pairs of index and returns
// one page of hits with the matched character ranges of every pair
func (w *Writer) Search(ctx context.Context, index string, sr SearchRequest) (*SearchResult, error) {
	if strings.TrimSpace(sr.Query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	}
	fields, err := searchFields(sr.Fields)
	if err != nil {
		return nil, err
	}
	page, size := sr.Page, sr.PageSize
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	highlight := map[string]any{}
	for _, f := range fields {
		highlight[f] = map[string]any{}
	}
	boolQuery := map[string]any{
		"must": []any{map[string]any{
			"nested": map[string]any{
				"path": "flat",
				"query": map[string]any{
					"multi_match": map[string]any{
						"query":  sr.Query,
						"type":   "phrase",
						"fields": fields,
					},
				},
				"inner_hits": map[string]any{
					"size": maxInnerHits,
					"highlight": map[string]any{
						"pre_tags":            []string{PreTag},
						"post_tags":           []string{PostTag},
						"number_of_fragments": 0,
						"fields":              highlight,
					},
				},
			},
		}},
	}
	if sr.Source != nil {
		boolQuery["filter"] = sourceFilter(sr.Source)
	}

	body, err := json.Marshal(map[string]any{
		"from":             page * size,
		"size":             size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": boolQuery},
		"_source":          []string{"updateVersion", "updateAt", "updateAtTimeZone", "source"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	resp, err := w.do(ctx, &httpclient.Request{
		Method: http.MethodPost,
		Path:   "/" + url.PathEscape(index) + "/_search",
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	return parseSearchResponse(resp.Body, page, size, utf8.RuneCountInString(sr.Query)), nil
}

func parseSearchResponse(raw []byte, page, size, phraseLen int) *SearchResult {
	body := gjson.ParseBytes(raw)
	result := &SearchResult{
		Total:    body.Get("hits.total.value").Int(),
		Page:     page,
		PageSize: size,
		Hits:     []Hit{},
	}

	body.Get("hits.hits").ForEach(func(_, h gjson.Result) bool {
		hit := Hit{
			ID:               h.Get("_id").String(),
			Score:            h.Get("_score").Float(),
			UpdateVersion:    h.Get("_source.updateVersion").Int(),
			UpdateAt:         h.Get("_source.updateAt").Int(),
			UpdateAtTimeZone: h.Get("_source.updateAtTimeZone").Int(),
			Source: Source{
				DBName:   h.Get("_source.source.dbName").String(),
				CollName: h.Get("_source.source.collName").String(),
			},
			Matches: []Match{},
		}
		h.Get("inner_hits.flat.hits.hits").ForEach(func(_, inner gjson.Result) bool {
			path := inner.Get("_source.path").String()
			value := inner.Get("_source.value").String()
			for _, field := range []string{FieldValue, FieldPath} {
				marked := inner.Get("highlight").Get(gjson.Escape("flat." + field) + ".0")
				if !marked.Exists() {
					continue
				}
				_, offsets := RecoverOffsets(marked.String(), phraseLen)
				hit.Matches = append(hit.Matches, Match{
					Path:    path,
					Value:   value,
					Field:   field,
					Offsets: offsets,
				})
			}
			return true
		})
		result.Hits = append(result.Hits, hit)
		return true
	})
	return result
}

// CreateIndex creates index with the character-level mapping. An existing
// index is left as it is.
func (w *Writer) CreateIndex(ctx context.Context, index string) error {
	req := &httpclient.Request{
		Method: http.MethodPut,
		Path:   "/" + url.PathEscape(index),
		Body:   []byte(indexDefinition),
	}
	resp, err := w.send(ctx, req)
	if err != nil {
		return err
	}
	if resp.IsSuccess() || errorType(resp) == "resource_already_exists_exception" {
		return nil
	}
	return classify(resp, req)
}

// DeleteIndex drops index. A missing index is not an error.
func (w *Writer) DeleteIndex(ctx context.Context, index string) error {
	req := &httpclient.Request{Method: http.MethodDelete, Path: "/" + url.PathEscape(index)}
	resp, err := w.send(ctx, req)
	if err != nil {
		return err
	}
	if resp.IsSuccess() || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return classify(resp, req)
}

// RecreateIndex drops and recreates index with an empty mapping
func (w *Writer) RecreateIndex(ctx context.Context, index string) error {
	if err := w.DeleteIndex(ctx, index); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", index, err)
	}
	if err := w.CreateIndex(ctx, index); err != nil {
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}
	slog.Info("Recreated search index", "index", index)
	return nil
}

// send performs req and maps transport failures to ErrUnavailable
func (w *Writer) send(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	resp, err := w.client.Do(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Join(ErrUnavailable, err)
	}
	return resp, nil
}

// do performs req and turns any non-2xx status into an error
func (w *Writer) do(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	resp, err := w.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, classify(resp, req)
	}
	return resp, nil
}

func classify(resp *httpclient.Response, req *httpclient.Request) error {
	err := resp.Err(req)
	switch {
	case resp.StatusCode == http.StatusConflict:
		return errors.Join(ErrVersionConflict, err)
	case isIndexNotFound(resp):
		return errors.Join(ErrIndexNotFound, err)
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return errors.Join(ErrUnavailable, err)
	default:
		return err
	}
}

func errorType(resp *httpclient.Response) string {
	return gjson.GetBytes(resp.Body, "error.type").String()
}

func isIndexNotFound(resp *httpclient.Response) bool {
	return resp.StatusCode == http.StatusNotFound && errorType(resp) == "index_not_found_exception"
}

func docPath(index, customID string) string {
	return "/" + url.PathEscape(index) + "/_doc/" + url.PathEscape(customID)
}

func sourceFilter(source *Source) []any {
	return []any{
		map[string]any{"term": map[string]any{"source.dbName": source.DBName}},
		map[string]any{"term": map[string]any{"source.collName": source.CollName}},
	}
}

func searchFields(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return []string{"flat." + FieldValue}, nil
	}
	fields := make([]string, 0, len(requested))
	for _, f := range requested {
		switch f {
		case FieldValue, FieldPath:
			fields = append(fields, "flat."+f)
		default:
			return nil, fmt.Errorf("%w: unsupported search field %q", ErrInvalidQuery, f)
		}
	}
	return fields, nil
}

func nonNilPairs(req UpsertRequest) []flatten.Pair {
	if req.Flat == nil {
		return []flatten.Pair{}
	}
	return req.Flat
}
