// Command archive-agent captures browser tabs into a web archive.
//
// Architecture overview:
//   - HTTP API: internal/api.Server is what the popup polls. GET /v1/tasks returns the task list,
//     POST /v1/tasks/clear drops finished tasks, and POST /v1/tasks starts a capture.
//   - Tracker: internal/tracker owns the task list. Each task moves init -> scraping -> uploading -> done,
//     or to failed from any non-terminal status. Every transition is written to the configured TaskStore
//     (file, badger, sqlite or memory).
//   - Capture: the headless scraper drives Chrome targets keyed by tab id through chromedp; the static
//     scraper fetches with colly under a per-domain rate limit. Both post-process the DOM with goquery.
//   - Upload: pages go either to the archive server's upload_new_page endpoint, or directly into the
//     archive's bucket (GCS/local) and Postgres page tables with an optional Pub/Sub notification.
//   - Observability: zap logs, Prometheus metrics on /metrics, OpenTelemetry spans per task step, progress
//     events fanned out to log and metric sinks, and optional Sentry reports for failed tasks.
//
// Startup and shutdown:
//   - On start the persisted task list is loaded and every task left unfinished by the previous run is
//     marked failed with "unexpected shutdown".
//   - SIGINT/SIGTERM drains the HTTP server, waits for running captures up to server.shutdown_timeout,
//     and closes every client. Captures still running at that point are reconciled on the next start.
//
// Quick checklist:
//   - Configure env vars with the ARCHIVE_ prefix, e.g. ARCHIVE_UPLOADER_HTTP_SERVER_URL,
//     ARCHIVE_UPLOADER_HTTP_TOKEN, ARCHIVE_STORE_BACKEND, ARCHIVE_SCRAPER_MODE.
//   - Run locally: go run ./cmd/archive-agent -config config.yaml (or rely solely on env overrides).
package main
