package indexsync

import (
	"context"
	"errors"

	"github.com/mongoadmin/indexsync/internal/docstore"
	"github.com/mongoadmin/indexsync/internal/indexqueue"
	"github.com/mongoadmin/indexsync/internal/lock"
	"github.com/mongoadmin/indexsync/internal/search"
)

// Code classifies the result of an operation. Zero is success, every failure
// kind has its own negative code.
type Code int

// Result codes
const (
	CodeOK                 Code = 0
	CodeNotFound           Code = -1
	CodeVersionConflict    Code = -2
	CodeLockUnavailable    Code = -3
	CodeBackendUnavailable Code = -4
	CodeInvalidArgument    Code = -5
	CodeInternal           Code = -99
)

var (
	// ErrUnknownIndex is returned for an index name that is not configured
	ErrUnknownIndex = errors.New("unknown index")

	// ErrUnknownSource is returned when a collection does not feed the index
	ErrUnknownSource = errors.New("collection is not a source of the index")

	// ErrInvalidID is returned for an empty document id
	ErrInvalidID = errors.New("invalid document id")

	// ErrMissingCustomID is returned when a document cannot be indexed because
	// its content has no customId yet
	ErrMissingCustomID = errors.New("document has no customId")
)

// Error represents a failed operation with its result code
type Error struct {
	Err     error
	Message string
	Code    Code
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalidArgument(err error) *Error {
	return &Error{Err: err, Message: err.Error(), Code: CodeInvalidArgument}
}

// CodeOf returns the result code of err
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	switch {
	case errors.Is(err, ErrUnknownIndex),
		errors.Is(err, ErrUnknownSource),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrMissingCustomID),
		errors.Is(err, docstore.ErrInvalidPath),
		errors.Is(err, docstore.ErrDuplicateKey),
		errors.Is(err, search.ErrInvalidQuery):
		return CodeInvalidArgument
	case errors.Is(err, docstore.ErrNoDocument),
		errors.Is(err, indexqueue.ErrNotFound),
		errors.Is(err, search.ErrIndexNotFound):
		return CodeNotFound
	case errors.Is(err, search.ErrVersionConflict):
		return CodeVersionConflict
	case errors.Is(err, lock.ErrLockUnavailable):
		return CodeLockUnavailable
	case errors.Is(err, docstore.ErrUnavailable),
		errors.Is(err, search.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return CodeBackendUnavailable
	default:
		return CodeInternal
	}
}

// Result is the uniform envelope returned for every operation
type Result struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ResultOf builds the envelope for the return values of an operation
func ResultOf(data any, err error) Result {
	if err != nil {
		return Result{Code: CodeOf(err), Message: err.Error()}
	}
	return Result{Code: CodeOK, Message: "ok", Data: data}
}
