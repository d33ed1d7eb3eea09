// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional config file. It provides
// type-safe access to the settings the reminder service needs: HTTP server,
// database, delayed-job scheduler, event bus, read cache, and the background
// maintenance jobs that release expired claims and re-register lost reminders.
package config
