// Package archive defines the domain types shared by the capture agent: the
// capture Task and its lifecycle, the page form submitted by the popup, and the
// collaborator interfaces (scraper, uploader, durable task store, blob store,
// page repository, publisher) that the tracker and uploaders depend on.
//
// The package holds no implementations of its interfaces; concrete backends
// live under internal/scraper, internal/uploader, internal/storage, and
// internal/publisher so that this package never imports drivers or clients.
package archive
