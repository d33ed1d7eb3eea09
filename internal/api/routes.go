package api

import "github.com/go-chi/chi/v5"

// Routes mounts the task endpoints. Use with r.Route("/tasks", h.Routes).
func (h *TaskHandler) Routes(r chi.Router) {
	r.Post("/", h.CreateTask)
	r.Get("/user/{userId}", h.GetUserTasks)
	r.Get("/{id}", h.GetTask)
	r.Put("/{id}", h.UpdateTask)
	r.Delete("/{id}", h.DeleteTask)
}

// Routes mounts the notification endpoints. Use with
// r.Route("/notifications", h.Routes).
func (h *NotificationHandler) Routes(r chi.Router) {
	r.Post("/", h.CreateNotification)
	r.Get("/task/{taskId}", h.ListByTask)
	r.Get("/status/{status}", h.ListByStatus)
	r.Get("/{id}", h.GetNotification)
	r.Put("/{id}", h.UpdateNotification)
	r.Delete("/{id}", h.DeleteNotification)
}
