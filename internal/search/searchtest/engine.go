// Package searchtest provides an in-memory stand-in for the Elasticsearch
// endpoints used by the search package. It speaks the same JSON so the real
// Writer can be exercised without a cluster.
package searchtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/mongoadmin/indexsync/internal/flatten"
	"github.com/mongoadmin/indexsync/internal/httpclient"
	"github.com/mongoadmin/indexsync/internal/search"
)

const primaryTerm = 1

// Fault lets a test replace the engine's answer to a request. Returning a nil
// response and a nil error lets the request through.
type Fault func(req *httpclient.Request) (*httpclient.Response, error)

// Hook runs before a document write is applied, without the engine lock held
type Hook func(req *httpclient.Request)

// Engine is a fake search engine. It is safe for concurrent use.
type Engine struct {
	mu          sync.Mutex
	indices     map[string]*index
	requests    []httpclient.Request
	fault       Fault
	beforeWrite Hook
}

type index struct {
	mapping json.RawMessage
	docs    map[string]*storedDoc
	seqNo   int64
}

type storedDoc struct {
	source  json.RawMessage
	seqNo   int64
	version int64
}

// NewEngine creates an empty engine
func NewEngine() *Engine {
	return &Engine{indices: map[string]*index{}}
}

// SetFault installs f for every following request
func (e *Engine) SetFault(f Fault) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fault = f
}

// SetBeforeWrite installs h for every following document write
func (e *Engine) SetBeforeWrite(h Hook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.beforeWrite = h
}

// Requests returns a copy of every request received so far
func (e *Engine) Requests() []httpclient.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]httpclient.Request(nil), e.requests...)
}

// CountRequests returns how many requests used method on a path containing part
func (e *Engine) CountRequests(method, part string) int {
	n := 0
	for _, r := range e.Requests() {
		if r.Method == method && strings.Contains(r.Path, part) {
			n++
		}
	}
	return n
}

// HasIndex reports whether name exists
func (e *Engine) HasIndex(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.indices[name]
	return ok
}

// Mapping returns the definition an index was created with
func (e *Engine) Mapping(name string) json.RawMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, ok := e.indices[name]; ok {
		return idx.mapping
	}
	return nil
}

// Document returns the stored body of id
func (e *Engine) Document(indexName, id string) (search.Document, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.indices[indexName]
	if !ok {
		return search.Document{}, false
	}
	doc, ok := idx.docs[id]
	if !ok {
		return search.Document{}, false
	}
	var out search.Document
	if err := json.Unmarshal(doc.source, &out); err != nil {
		return search.Document{}, false
	}
	return out, true
}

// Len returns the number of documents in an index
func (e *Engine) Len(indexName string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, ok := e.indices[indexName]; ok {
		return len(idx.docs)
	}
	return 0
}

// Put stores doc directly, creating the index if needed
func (e *Engine) Put(indexName, id string, doc search.Document) {
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("searchtest: encode document: %v", err))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store(e.ensureIndex(indexName), id, raw)
}

// Remove deletes id directly
func (e *Engine) Remove(indexName, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, ok := e.indices[indexName]; ok {
		delete(idx.docs, id)
	}
}

// Do implements httpclient.Client
func (e *Engine) Do(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	e.mu.Lock()
	e.requests = append(e.requests, *req)
	fault, hook := e.fault, e.beforeWrite
	e.mu.Unlock()

	if fault != nil {
		if resp, err := fault(req); resp != nil || err != nil {
			return resp, err
		}
	}

	segs, err := segments(req.Path)
	if err != nil {
		return reply(http.StatusBadRequest, errorBody("illegal_argument_exception", err.Error(), http.StatusBadRequest)), nil
	}

	if len(segs) == 3 && segs[1] == "_doc" && (req.Method == http.MethodPut || req.Method == http.MethodDelete) && hook != nil {
		hook(req)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case len(segs) == 0:
		return reply(http.StatusOK, map[string]any{
			"cluster_name": "searchtest",
			"version":      map[string]any{"number": "8.15.0"},
		}), nil
	case len(segs) == 1:
		return e.handleIndex(req, segs[0]), nil
	case len(segs) == 2 && segs[1] == "_count":
		return e.handleCount(req, segs[0]), nil
	case len(segs) == 2 && segs[1] == "_search":
		return e.handleSearch(req, segs[0]), nil
	case len(segs) == 3 && segs[1] == "_doc":
		return e.handleDoc(req, segs[0], segs[2]), nil
	default:
		return reply(http.StatusBadRequest, errorBody("illegal_argument_exception", "unsupported path "+req.Path, http.StatusBadRequest)), nil
	}
}

func (e *Engine) handleIndex(req *httpclient.Request, name string) *httpclient.Response {
	idx, exists := e.indices[name]
	switch req.Method {
	case http.MethodPut:
		if exists {
			return reply(http.StatusBadRequest, errorBody("resource_already_exists_exception",
				fmt.Sprintf("index [%s] already exists", name), http.StatusBadRequest))
		}
		if len(req.Body) > 0 && !json.Valid(req.Body) {
			return reply(http.StatusBadRequest, errorBody("parse_exception", "invalid index definition", http.StatusBadRequest))
		}
		idx = e.ensureIndex(name)
		idx.mapping = append(json.RawMessage(nil), req.Body...)
		return reply(http.StatusOK, map[string]any{"acknowledged": true, "index": name})
	case http.MethodDelete:
		if !exists {
			return indexNotFound(name)
		}
		delete(e.indices, name)
		return reply(http.StatusOK, map[string]any{"acknowledged": true})
	case http.MethodGet, http.MethodHead:
		if !exists {
			return indexNotFound(name)
		}
		return reply(http.StatusOK, map[string]any{name: map[string]any{}})
	default:
		return reply(http.StatusMethodNotAllowed, errorBody("method_not_allowed", req.Method, http.StatusMethodNotAllowed))
	}
}

func (e *Engine) handleDoc(req *httpclient.Request, name, id string) *httpclient.Response {
	idx, exists := e.indices[name]
	switch req.Method {
	case http.MethodGet, http.MethodHead:
		if !exists {
			return indexNotFound(name)
		}
		doc, ok := idx.docs[id]
		if !ok {
			return reply(http.StatusNotFound, map[string]any{"_index": name, "_id": id, "found": false})
		}
		return reply(http.StatusOK, map[string]any{
			"_index":        name,
			"_id":           id,
			"_version":      doc.version,
			"_seq_no":       doc.seqNo,
			"_primary_term": primaryTerm,
			"found":         true,
			"_source":       doc.source,
		})

	case http.MethodPut:
		if !json.Valid(req.Body) {
			return reply(http.StatusBadRequest, errorBody("mapper_parsing_exception", "failed to parse", http.StatusBadRequest))
		}
		if !exists {
			idx = e.ensureIndex(name)
		}
		current, found := idx.docs[id]
		if req.Query.Get("op_type") == "create" && found {
			return versionConflict(id, "document already exists")
		}
		if resp := checkToken(req.Query, current, found, id); resp != nil {
			return resp
		}
		doc := e.store(idx, id, req.Body)
		status, result := http.StatusCreated, "created"
		if found {
			status, result = http.StatusOK, "updated"
		}
		return reply(status, map[string]any{
			"_index":        name,
			"_id":           id,
			"_version":      doc.version,
			"_seq_no":       doc.seqNo,
			"_primary_term": primaryTerm,
			"result":        result,
		})

	case http.MethodDelete:
		if !exists {
			return indexNotFound(name)
		}
		current, found := idx.docs[id]
		if resp := checkToken(req.Query, current, found, id); resp != nil {
			return resp
		}
		if !found {
			return reply(http.StatusNotFound, map[string]any{"_index": name, "_id": id, "result": "not_found"})
		}
		delete(idx.docs, id)
		idx.seqNo++
		return reply(http.StatusOK, map[string]any{
			"_index":   name,
			"_id":      id,
			"_version": current.version + 1,
			"_seq_no":  idx.seqNo,
			"result":   "deleted",
		})

	default:
		return reply(http.StatusMethodNotAllowed, errorBody("method_not_allowed", req.Method, http.StatusMethodNotAllowed))
	}
}

func (e *Engine) handleCount(req *httpclient.Request, name string) *httpclient.Response {
	idx, ok := e.indices[name]
	if !ok {
		return indexNotFound(name)
	}
	filters := gjson.GetBytes(req.Body, "query.bool.filter")
	var n int64
	for _, doc := range idx.docs {
		if matchesFilters(doc.source, filters) {
			n++
		}
	}
	return reply(http.StatusOK, map[string]any{"count": n})
}

type hitRow struct {
	id      string
	doc     search.Document
	score   int
	matches []map[string]any
}

func (e *Engine) handleSearch(req *httpclient.Request, name string) *httpclient.Response {
	idx, ok := e.indices[name]
	if !ok {
		return indexNotFound(name)
	}

	body := gjson.ParseBytes(req.Body)
	nested := body.Get("query.bool.must.0.nested")
	query := []rune(lower(nested.Get("query.multi_match.query").String()))
	pre := nested.Get("inner_hits.highlight.pre_tags.0").String()
	post := nested.Get("inner_hits.highlight.post_tags.0").String()
	var fields []string
	nested.Get("query.multi_match.fields").ForEach(func(_, f gjson.Result) bool {
		fields = append(fields, f.String())
		return true
	})
	filters := body.Get("query.bool.filter")

	var rows []hitRow
	for id, stored := range idx.docs {
		if len(query) == 0 || !matchesFilters(stored.source, filters) {
			continue
		}
		var doc search.Document
		if err := json.Unmarshal(stored.source, &doc); err != nil {
			continue
		}
		row := hitRow{id: id, doc: doc}
		for _, pair := range doc.Flat {
			highlight := map[string]any{}
			for _, field := range fields {
				text := fieldText(pair, field)
				if marked, hit := highlightRunes(text, query, pre, post); hit {
					highlight[field] = []string{marked}
				}
			}
			if len(highlight) > 0 {
				row.score++
				row.matches = append(row.matches, map[string]any{
					"_source":   map[string]any{"path": pair.Path, "value": pair.Value},
					"highlight": highlight,
				})
			}
		}
		if row.score > 0 {
			rows = append(rows, row)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		return rows[i].id < rows[j].id
	})

	from := int(body.Get("from").Int())
	size := int(body.Get("size").Int())
	if !body.Get("size").Exists() {
		size = 10
	}
	page := rows[min(from, len(rows)):min(from+size, len(rows))]

	hits := make([]map[string]any, 0, len(page))
	for _, row := range page {
		hits = append(hits, map[string]any{
			"_index": name,
			"_id":    row.id,
			"_score": float64(row.score),
			"_source": map[string]any{
				"updateVersion":    row.doc.UpdateVersion,
				"updateAt":         row.doc.UpdateAt,
				"updateAtTimeZone": row.doc.UpdateAtTimeZone,
				"source":           row.doc.Source,
			},
			"inner_hits": map[string]any{
				"flat": map[string]any{
					"hits": map[string]any{"hits": row.matches},
				},
			},
		})
	}
	return reply(http.StatusOK, map[string]any{
		"hits": map[string]any{
			"total": map[string]any{"value": len(rows), "relation": "eq"},
			"hits":  hits,
		},
	})
}

func (e *Engine) ensureIndex(name string) *index {
	idx, ok := e.indices[name]
	if !ok {
		idx = &index{docs: map[string]*storedDoc{}, seqNo: -1}
		e.indices[name] = idx
	}
	return idx
}

func (e *Engine) store(idx *index, id string, raw []byte) *storedDoc {
	idx.seqNo++
	doc := &storedDoc{source: append(json.RawMessage(nil), raw...), seqNo: idx.seqNo, version: 1}
	if prev, ok := idx.docs[id]; ok {
		doc.version = prev.version + 1
	}
	idx.docs[id] = doc
	return doc
}

func checkToken(query url.Values, current *storedDoc, found bool, id string) *httpclient.Response {
	seq, term := query.Get("if_seq_no"), query.Get("if_primary_term")
	if seq == "" && term == "" {
		return nil
	}
	wantSeq, err1 := strconv.ParseInt(seq, 10, 64)
	wantTerm, err2 := strconv.ParseInt(term, 10, 64)
	if err1 != nil || err2 != nil {
		return reply(http.StatusBadRequest, errorBody("illegal_argument_exception", "invalid concurrency token", http.StatusBadRequest))
	}
	if !found {
		return versionConflict(id, "no document was found")
	}
	if current.seqNo != wantSeq || wantTerm != primaryTerm {
		return versionConflict(id, fmt.Sprintf("required seqNo [%d], current document has seqNo [%d]", wantSeq, current.seqNo))
	}
	return nil
}

func matchesFilters(source []byte, filters gjson.Result) bool {
	ok := true
	filters.ForEach(func(_, f gjson.Result) bool {
		f.Get("term").ForEach(func(k, v gjson.Result) bool {
			if gjson.GetBytes(source, k.String()).String() != v.String() {
				ok = false
			}
			return ok
		})
		return ok
	})
	return ok
}

func fieldText(pair flatten.Pair, field string) string {
	if field == "flat."+search.FieldPath {
		return pair.Path
	}
	return pair.Value
}

// highlightRunes marks every rune of every non-overlapping occurrence of
// query in text on its own, the way a single-character tokenizer does
func highlightRunes(text string, query []rune, pre, post string) (string, bool) {
	runes := []rune(text)
	folded := []rune(lower(text))
	marked := make([]bool, len(runes))
	hit := false
	for i := 0; i+len(query) <= len(folded); {
		if string(folded[i:i+len(query)]) == string(query) {
			for j := i; j < i+len(query); j++ {
				marked[j] = true
			}
			hit = true
			i += len(query)
			continue
		}
		i++
	}
	if !hit {
		return "", false
	}
	var b strings.Builder
	for i, r := range runes {
		if marked[i] {
			b.WriteString(pre)
			b.WriteRune(r)
			b.WriteString(post)
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), true
}

// lower folds case rune by rune so offsets stay aligned with the input
func lower(s string) string {
	return strings.Map(unicode.ToLower, s)
}

func segments(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		u, err := url.PathUnescape(p)
		if err != nil {
			return nil, err
		}
		parts[i] = u
	}
	return parts, nil
}

func indexNotFound(name string) *httpclient.Response {
	return reply(http.StatusNotFound, errorBody("index_not_found_exception",
		fmt.Sprintf("no such index [%s]", name), http.StatusNotFound))
}

func versionConflict(id, reason string) *httpclient.Response {
	return reply(http.StatusConflict, errorBody("version_conflict_engine_exception",
		fmt.Sprintf("[%s]: version conflict, %s", id, reason), http.StatusConflict))
}

func errorBody(kind, reason string, status int) map[string]any {
	return map[string]any{
		"error":  map[string]any{"type": kind, "reason": reason},
		"status": status,
	}
}

func reply(status int, body any) *httpclient.Response {
	raw, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("searchtest: encode response: %v", err))
	}
	return &httpclient.Response{StatusCode: status, Body: raw}
}
