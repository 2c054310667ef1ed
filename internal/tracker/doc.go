// Package tracker owns the lifecycle of capture tasks: it creates them, drives
// them through scraping and uploading, persists every transition to a durable
// TaskStore, and reconciles tasks stranded by a previous shutdown.
package tracker
