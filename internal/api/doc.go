// Package api handles incoming HTTP requests, request validation and
// response formatting. It acts as an adapter between HTTP clients and the
// task and notification use cases in internal/service.
//
// Handlers depend on the small TaskService and NotificationService
// interfaces declared here. Every failure is written through HandleAPIError,
// which maps service and domain errors to status codes and sanitized
// messages, and logs the redacted cause with the request's trace ID.
package api
