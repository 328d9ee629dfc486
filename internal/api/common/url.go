// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// GetAndValidateURLParam extracts and decodes a URL parameter from the request.
// The decoded value must not be empty and must not contain whitespace.
func GetAndValidateURLParam(r *http.Request, paramName string) (string, error) {
	decoded, err := url.PathUnescape(chi.URLParam(r, paramName))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", paramName)
	}
	if strings.TrimSpace(decoded) == "" {
		return "", fmt.Errorf("%s cannot be empty", paramName)
	}
	if strings.ContainsAny(decoded, " \t\n\r") {
		return "", fmt.Errorf("%s cannot contain whitespace", paramName)
	}
	return decoded, nil
}

// GetURLParams extracts several URL parameters, stopping at the first invalid one
func GetURLParams(r *http.Request, paramNames ...string) ([]string, error) {
	values := make([]string, 0, len(paramNames))
	for _, name := range paramNames {
		v, err := GetAndValidateURLParam(r, name)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
