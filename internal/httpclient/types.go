package httpclient

import "fmt"

// HTTPError represents an unexpected HTTP status
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// IsSuccess reports a 2xx status
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err returns an HTTPError for a non-2xx response, nil otherwise
func (r *Response) Err(req *Request) error {
	if r.IsSuccess() {
		return nil
	}
	msg := string(r.Body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return NewHTTPError(r.StatusCode, req.Method+" "+req.Path, msg)
}
