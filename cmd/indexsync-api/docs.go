// Package docs provides OpenAPI documentation for the index sync API
//
//	@title			Index Sync API
//	@version		0.1
//	@description	API for storing versioned MongoDB documents and keeping their Elasticsearch
//	@description	indexes in step. Writes are acknowledged once stored; indexing happens
//	@description	asynchronously and is retried by the background rebuild.
//
//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html
//
//	@tag.name	documents
//	@tag.description	Versioned document storage
//
//	@tag.name	indexes
//	@tag.description	Search, statistics and rebuilds of logical indexes
//
//	@tag.name	system
//	@tag.description	Health and version information
package main
