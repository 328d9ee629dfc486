package indexsync_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mongoadmin/indexsync/internal/docstore"
	"github.com/mongoadmin/indexsync/internal/indexqueue"
	"github.com/mongoadmin/indexsync/internal/indexsync"
	"github.com/mongoadmin/indexsync/internal/lock"
	"github.com/mongoadmin/indexsync/internal/search"
)

func TestCodeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want indexsync.Code
	}{
		{name: "nil", err: nil, want: indexsync.CodeOK},
		{name: "explicit code", err: &indexsync.Error{Message: "x", Code: indexsync.CodeVersionConflict}, want: indexsync.CodeVersionConflict},
		{name: "unknown index", err: fmt.Errorf("%w: nope", indexsync.ErrUnknownIndex), want: indexsync.CodeInvalidArgument},
		{name: "invalid path", err: docstore.ErrInvalidPath, want: indexsync.CodeInvalidArgument},
		{name: "duplicate key", err: docstore.ErrDuplicateKey, want: indexsync.CodeInvalidArgument},
		{name: "invalid query", err: search.ErrInvalidQuery, want: indexsync.CodeInvalidArgument},
		{name: "missing document", err: fmt.Errorf("document d1: %w", docstore.ErrNoDocument), want: indexsync.CodeNotFound},
		{name: "missing queue entry", err: indexqueue.ErrNotFound, want: indexsync.CodeNotFound},
		{name: "version conflict", err: errors.Join(search.ErrVersionConflict, errors.New("409")), want: indexsync.CodeVersionConflict},
		{name: "lock unavailable", err: fmt.Errorf("acquire: %w", lock.ErrLockUnavailable), want: indexsync.CodeLockUnavailable},
		{name: "search engine down", err: errors.Join(search.ErrUnavailable, errors.New("refused")), want: indexsync.CodeBackendUnavailable},
		{name: "storage down", err: docstore.ErrUnavailable, want: indexsync.CodeBackendUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: indexsync.CodeBackendUnavailable},
		{name: "anything else", err: errors.New("boom"), want: indexsync.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, indexsync.CodeOf(tt.err))
		})
	}
}

func TestResultOf(t *testing.T) {
	t.Parallel()

	ok := indexsync.ResultOf(map[string]string{"id": "d1"}, nil)
	assert.Equal(t, indexsync.CodeOK, ok.Code)
	assert.Equal(t, "ok", ok.Message)
	assert.Equal(t, map[string]string{"id": "d1"}, ok.Data)

	failed := indexsync.ResultOf(map[string]string{"id": "d1"}, fmt.Errorf("document d1: %w", docstore.ErrNoDocument))
	assert.Equal(t, indexsync.CodeNotFound, failed.Code)
	assert.Equal(t, "document d1: document not found", failed.Message)
	assert.Nil(t, failed.Data)
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	err := &indexsync.Error{Err: indexsync.ErrInvalidID, Message: "bad id", Code: indexsync.CodeInvalidArgument}
	assert.EqualError(t, err, "bad id")
	assert.ErrorIs(t, err, indexsync.ErrInvalidID)
}
