// Package v1 provides the index synchronization REST endpoints.
package v1

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mongoadmin/indexsync/internal/api/common"
	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/indexsync"
	"github.com/mongoadmin/indexsync/internal/search"
	"github.com/mongoadmin/indexsync/internal/sync/state"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 4 << 20

// CreateDocRequest is the body of a document creation
type CreateDocRequest struct {
	// ID is optional; storage assigns one when empty
	ID      string         `json:"id,omitempty"`
	Content map[string]any `json:"content"`
}

// UpdateDocRequest is the body of a document update. Keys are dotted content
// paths, values replace what is stored there.
type UpdateDocRequest struct {
	Updates map[string]any `json:"updates"`
}

// Routes handles HTTP requests for the v1 endpoints
type Routes struct {
	service  indexsync.Service
	statuses state.IndexStateService
}

// NewRoutes creates a new Routes instance. statuses may be nil when no
// background rebuild runs.
func NewRoutes(svc indexsync.Service, statuses state.IndexStateService) *Routes {
	return &Routes{
		service:  svc,
		statuses: statuses,
	}
}

// Router creates and configures the HTTP router for the v1 endpoints
func Router(svc indexsync.Service, statuses state.IndexStateService) http.Handler {
	routes := NewRoutes(svc, statuses)

	r := chi.NewRouter()

	r.Route("/indexes/{index}", func(r chi.Router) {
		r.Get("/stats", routes.getIndexStats)
		r.Get("/status", routes.getSyncStatus)
		r.Post("/rebuild", routes.rebuild)
		r.Post("/search", routes.search)

		r.Route("/sources/{database}/{collection}/docs", func(r chi.Router) {
			r.Post("/", routes.createDoc)
			r.Put("/{id}", routes.updateDoc)
			r.Get("/{id}", routes.getDoc)
			r.Delete("/{id}", routes.deleteDoc)
			r.Get("/{id}/stats", routes.getDocStats)
		})
	})

	return r
}

// createDoc handles POST /v1/indexes/{index}/sources/{database}/{collection}/docs
//
// @Summary		Create document
// @Description	Store a new document and schedule its indexing
// @Tags			documents
// @Accept			json
// @Produce		json
// @Param			index		path		string				true	"Index name"
// @Param			database	path		string				true	"Database name"
// @Param			collection	path		string				true	"Collection name"
// @Param			body		body		CreateDocRequest	true	"Document"
// @Success		201			{object}	indexsync.Result
// @Failure		400			{object}	indexsync.Result
// @Router			/v1/indexes/{index}/sources/{database}/{collection}/docs [post]
func (routes *Routes) createDoc(w http.ResponseWriter, r *http.Request) {
	index, src, ok := sourceParams(w, r)
	if !ok {
		return
	}

	var req CreateDocRequest
	if !decodeBody(w, r, &req) {
		return
	}

	doc, err := routes.service.CreateDoc(r.Context(), index, src, req.ID, req.Content)
	common.WriteResult(w, doc, err, http.StatusCreated)
}

// updateDoc handles PUT /v1/indexes/{index}/sources/{database}/{collection}/docs/{id}
//
// @Summary		Update document
// @Description	Apply content updates and schedule reindexing
// @Tags			documents
// @Accept			json
// @Produce		json
// @Param			id		path		string				true	"Document ID"
// @Param			body	body		UpdateDocRequest	true	"Updates"
// @Success		200		{object}	indexsync.Result
// @Failure		404		{object}	indexsync.Result
// @Router			/v1/indexes/{index}/sources/{database}/{collection}/docs/{id} [put]
func (routes *Routes) updateDoc(w http.ResponseWriter, r *http.Request) {
	index, src, id, ok := docParams(w, r)
	if !ok {
		return
	}

	var req UpdateDocRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Updates) == 0 {
		common.WriteInvalidArgument(w, "updates must not be empty")
		return
	}

	doc, err := routes.service.UpdateDoc(r.Context(), index, src, id, req.Updates)
	common.WriteResult(w, doc, err, http.StatusOK)
}

func (routes *Routes) getDoc(w http.ResponseWriter, r *http.Request) {
	index, src, id, ok := docParams(w, r)
	if !ok {
		return
	}
	doc, err := routes.service.GetDoc(r.Context(), index, src, id)
	common.WriteResult(w, doc, err, http.StatusOK)
}

// deleteDoc handles DELETE /v1/indexes/{index}/sources/{database}/{collection}/docs/{id}
//
// @Summary		Delete document
// @Description	Soft-delete a document; it is purged once removed from the index
// @Tags			documents
// @Produce		json
// @Param			id	path		string	true	"Document ID"
// @Success		200	{object}	indexsync.Result
// @Failure		404	{object}	indexsync.Result
// @Router			/v1/indexes/{index}/sources/{database}/{collection}/docs/{id} [delete]
func (routes *Routes) deleteDoc(w http.ResponseWriter, r *http.Request) {
	index, src, id, ok := docParams(w, r)
	if !ok {
		return
	}
	doc, err := routes.service.DeleteDoc(r.Context(), index, src, id)
	common.WriteResult(w, doc, err, http.StatusOK)
}

func (routes *Routes) getDocStats(w http.ResponseWriter, r *http.Request) {
	index, src, id, ok := docParams(w, r)
	if !ok {
		return
	}
	stats, err := routes.service.GetStats(r.Context(), index, src, id)
	common.WriteResult(w, stats, err, http.StatusOK)
}

// getIndexStats handles GET /v1/indexes/{index}/stats
//
// @Summary		Index statistics
// @Description	Aggregate synchronization counts of an index
// @Tags			indexes
// @Produce		json
// @Param			index	path		string	true	"Index name"
// @Success		200		{object}	indexsync.Result
// @Router			/v1/indexes/{index}/stats [get]
func (routes *Routes) getIndexStats(w http.ResponseWriter, r *http.Request) {
	index, err := common.GetAndValidateURLParam(r, "index")
	if err != nil {
		common.WriteInvalidArgument(w, err.Error())
		return
	}
	stats, err := routes.service.GetIndexStats(r.Context(), index)
	common.WriteResult(w, stats, err, http.StatusOK)
}

// getSyncStatus handles GET /v1/indexes/{index}/status
//
// @Summary		Background rebuild status
// @Tags			indexes
// @Produce		json
// @Param			index	path		string	true	"Index name"
// @Success		200		{object}	indexsync.Result
// @Failure		404		{object}	indexsync.Result
// @Router			/v1/indexes/{index}/status [get]
func (routes *Routes) getSyncStatus(w http.ResponseWriter, r *http.Request) {
	index, err := common.GetAndValidateURLParam(r, "index")
	if err != nil {
		common.WriteInvalidArgument(w, err.Error())
		return
	}
	if routes.statuses == nil {
		common.WriteResult(w, nil, &indexsync.Error{
			Message: "background rebuild is disabled",
			Code:    indexsync.CodeNotFound,
		}, http.StatusOK)
		return
	}

	status, err := routes.statuses.GetSyncStatus(r.Context(), index)
	if err != nil {
		common.WriteResult(w, nil, &indexsync.Error{Err: err, Message: err.Error(), Code: indexsync.CodeNotFound}, http.StatusOK)
		return
	}
	common.WriteResult(w, status, nil, http.StatusOK)
}

// rebuild handles POST /v1/indexes/{index}/rebuild
//
// @Summary		Rebuild index
// @Description	Re-index every document (full) or only the pending ones (incremental)
// @Tags			indexes
// @Produce		json
// @Param			index	path		string	true	"Index name"
// @Param			mode	query		string	false	"Rebuild mode"	Enums(full,incremental)	default(incremental)
// @Param			maxDocs	query		int		false	"Maximum documents to visit, 0 for all"
// @Success		200		{object}	indexsync.Result
// @Failure		400		{object}	indexsync.Result
// @Router			/v1/indexes/{index}/rebuild [post]
func (routes *Routes) rebuild(w http.ResponseWriter, r *http.Request) {
	index, err := common.GetAndValidateURLParam(r, "index")
	if err != nil {
		common.WriteInvalidArgument(w, err.Error())
		return
	}

	query := r.URL.Query()

	var maxDocs int64
	if v := query.Get("maxDocs"); v != "" {
		maxDocs, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			common.WriteInvalidArgument(w, "Invalid maxDocs parameter: must be an integer")
			return
		}
	}

	var result *indexsync.RebuildResult
	switch mode := query.Get("mode"); mode {
	case indexsync.ModeFull:
		result, err = routes.service.RebuildFull(r.Context(), index, maxDocs)
	case indexsync.ModeIncremental, "":
		result, err = routes.service.RebuildIncremental(r.Context(), index, maxDocs)
	default:
		common.WriteInvalidArgument(w, fmt.Sprintf("Invalid mode parameter %q: must be full or incremental", mode))
		return
	}
	common.WriteResult(w, result, err, http.StatusOK)
}

// search handles POST /v1/indexes/{index}/search
//
// @Summary		Search index
// @Description	Phrase search over flattened document content with highlights
// @Tags			indexes
// @Accept			json
// @Produce		json
// @Param			index	path		string					true	"Index name"
// @Param			body	body		search.SearchRequest	true	"Query"
// @Success		200		{object}	indexsync.Result
// @Failure		400		{object}	indexsync.Result
// @Router			/v1/indexes/{index}/search [post]
func (routes *Routes) search(w http.ResponseWriter, r *http.Request) {
	index, err := common.GetAndValidateURLParam(r, "index")
	if err != nil {
		common.WriteInvalidArgument(w, err.Error())
		return
	}

	var req search.SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := routes.service.Search(r.Context(), index, req)
	common.WriteResult(w, result, err, http.StatusOK)
}

func sourceParams(w http.ResponseWriter, r *http.Request) (string, config.SourceConfig, bool) {
	values, err := common.GetURLParams(r, "index", "database", "collection")
	if err != nil {
		common.WriteInvalidArgument(w, err.Error())
		return "", config.SourceConfig{}, false
	}
	return values[0], config.SourceConfig{Database: values[1], Collection: values[2]}, true
}

func docParams(w http.ResponseWriter, r *http.Request) (string, config.SourceConfig, string, bool) {
	index, src, ok := sourceParams(w, r)
	if !ok {
		return "", src, "", false
	}
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteInvalidArgument(w, err.Error())
		return "", src, "", false
	}
	return index, src, id, true
}

// decodeBody writes a failure envelope and returns false when the body is
// not valid JSON
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		common.WriteInvalidArgument(w, "Failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		common.WriteInvalidArgument(w, "Invalid request body: "+err.Error())
		return false
	}
	return true
}
