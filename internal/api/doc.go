// Package api serves the popup's view of the task tracker over HTTP.
// Notable routes:
//   - GET /v1/tasks polls the task list; POST /v1/tasks/clear drops done tasks.
//   - POST /v1/tasks starts a capture of a tab and returns the init snapshot.
//   - GET /v1/tasks/{task_id} returns one task.
//   - DELETE /v1/tabs/{tab_id} closes a headless tab.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus.
package api
