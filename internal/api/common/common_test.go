package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoadmin/indexsync/internal/docstore"
	"github.com/mongoadmin/indexsync/internal/indexsync"
)

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code indexsync.Code
		want int
	}{
		{indexsync.CodeOK, http.StatusOK},
		{indexsync.CodeNotFound, http.StatusNotFound},
		{indexsync.CodeVersionConflict, http.StatusConflict},
		{indexsync.CodeLockUnavailable, http.StatusLocked},
		{indexsync.CodeBackendUnavailable, http.StatusServiceUnavailable},
		{indexsync.CodeInvalidArgument, http.StatusBadRequest},
		{indexsync.CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.code), "code %d", tt.code)
	}
}

func TestWriteResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		data       any
		err        error
		okStatus   int
		wantStatus int
		wantCode   indexsync.Code
		wantData   bool
	}{
		{name: "success", data: map[string]string{"id": "d1"}, okStatus: http.StatusCreated, wantStatus: http.StatusCreated, wantData: true},
		{name: "not found", err: fmt.Errorf("document d1: %w", docstore.ErrNoDocument), okStatus: http.StatusOK, wantStatus: http.StatusNotFound, wantCode: indexsync.CodeNotFound},
		{name: "internal", err: errors.New("boom"), okStatus: http.StatusOK, wantStatus: http.StatusInternalServerError, wantCode: indexsync.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rr := httptest.NewRecorder()
			WriteResult(rr, tt.data, tt.err, tt.okStatus)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.EqualValues(t, tt.wantCode, body["code"])
			_, hasData := body["data"]
			assert.Equal(t, tt.wantData, hasData)
		})
	}
}

func TestWriteInvalidArgument(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	WriteInvalidArgument(rr, "maxDocs must be a number")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"code":-5,"message":"maxDocs must be a number"}`, rr.Body.String())
}
