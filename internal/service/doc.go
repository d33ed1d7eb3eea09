// Package service contains the application use cases of the reminder
// service. It coordinates the task repository, the reminder queue, the event
// bus and the read cache, and is the layer the HTTP handlers call.
//
// Key components:
//
// 1. TaskFacade:
//   - Creates, updates and deletes tasks and keeps their reminder jobs in step
//   - Serves task reads cache-aside through cache.Guard
//
// 2. NotificationFacade:
//   - Subscribes to task arrivals and creates at most one reminder per task
//   - Publishes notification lifecycle events around NotificationService
//
// 3. Error Handling:
//   - Not-found conditions are returned as the sentinels in errors.go
//   - Other failures are wrapped in TaskServiceError or NotificationServiceError
//     and keep their cause reachable through errors.Is and errors.As
package service
