// Package integration provides integration tests for the index sync API server.
// These tests run the complete server lifecycle against each storage and lock
// backend, with an in-memory search engine standing in for Elasticsearch.
package integration
