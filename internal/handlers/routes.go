package handlers

import (
	"net/http"

	"github.com/buildrite/siteops/libs/httpx"
)

// Routes bundles the API surface with its auth configuration.
type Routes struct {
	Auth          *AuthHandler
	Appointments  *AppointmentHandler
	Quotations    *QuotationHandler
	Tasks         *TaskHandler
	Employees     *EmployeeHandler
	Notifications *NotificationHandler

	JWTSecret string
	// BookingLimit guards the unauthenticated booking endpoint; nil disables
	// rate limiting.
	BookingLimit httpx.Middleware
}

// Register wires the versioned API onto mux. Admin-only routes go through
// RequireAdmin; client-visible routes only need a valid token, with the
// workflow layer enforcing per-entity access.
func (rt Routes) Register(mux *http.ServeMux) {
	admin := func(h http.HandlerFunc) http.HandlerFunc { return RequireAdmin(rt.JWTSecret, h) }
	authed := func(h http.HandlerFunc) http.HandlerFunc { return RequireAuth(rt.JWTSecret, h) }

	mux.HandleFunc("POST /api/v1/auth/login", rt.Auth.Login)
	mux.HandleFunc("GET /api/v1/auth/me", authed(rt.Auth.Me))
	mux.HandleFunc("PUT /api/v1/auth/calendar-tokens", authed(rt.Auth.SaveCalendarTokens))

	submit := http.Handler(http.HandlerFunc(rt.Appointments.Submit))
	if rt.BookingLimit != nil {
		submit = rt.BookingLimit(submit)
	}
	mux.Handle("POST /api/v1/appointments", submit)
	mux.HandleFunc("GET /api/v1/appointments", admin(rt.Appointments.List))
	mux.HandleFunc("GET /api/v1/appointments/mine", authed(rt.Appointments.ListMine))
	mux.HandleFunc("GET /api/v1/appointments/{id}", authed(rt.Appointments.Get))
	mux.HandleFunc("PATCH /api/v1/appointments/{id}/status", admin(rt.Appointments.UpdateStatus))
	mux.HandleFunc("DELETE /api/v1/appointments/{id}", admin(rt.Appointments.Delete))

	mux.HandleFunc("POST /api/v1/quotations", admin(rt.Quotations.Create))
	mux.HandleFunc("GET /api/v1/quotations", admin(rt.Quotations.List))
	mux.HandleFunc("GET /api/v1/quotations/mine", authed(rt.Quotations.ListMine))
	mux.HandleFunc("GET /api/v1/quotations/{id}", authed(rt.Quotations.Get))
	mux.HandleFunc("PATCH /api/v1/quotations/{id}", admin(rt.Quotations.Update))
	mux.HandleFunc("PATCH /api/v1/quotations/{id}/status", authed(rt.Quotations.UpdateStatus))
	mux.HandleFunc("POST /api/v1/quotations/{id}/file", admin(rt.Quotations.UploadFile))
	mux.HandleFunc("DELETE /api/v1/quotations/{id}", admin(rt.Quotations.Delete))

	mux.HandleFunc("POST /api/v1/tasks", admin(rt.Tasks.Create))
	mux.HandleFunc("GET /api/v1/tasks", admin(rt.Tasks.List))
	mux.HandleFunc("GET /api/v1/tasks/stats", admin(rt.Tasks.Statistics))
	mux.HandleFunc("GET /api/v1/tasks/schedule", admin(rt.Tasks.Schedule))
	mux.HandleFunc("GET /api/v1/tasks/employee/{employeeID}", admin(rt.Tasks.ListByEmployee))
	mux.HandleFunc("GET /api/v1/tasks/client/{clientID}", admin(rt.Tasks.ListByClient))
	mux.HandleFunc("GET /api/v1/tasks/status/{status}", admin(rt.Tasks.ListByStatus))
	mux.HandleFunc("GET /api/v1/tasks/{id}", admin(rt.Tasks.Get))
	mux.HandleFunc("PATCH /api/v1/tasks/{id}", admin(rt.Tasks.Update))
	mux.HandleFunc("POST /api/v1/tasks/{id}/assign", admin(rt.Tasks.Assign))
	mux.HandleFunc("POST /api/v1/tasks/{id}/remind", admin(rt.Tasks.SendReminder))
	// Completion is open to any authenticated caller (assigned employees
	// close their own jobs); the closer is stamped from the token.
	mux.HandleFunc("POST /api/v1/tasks/{id}/complete", authed(rt.Tasks.Complete))
	mux.HandleFunc("DELETE /api/v1/tasks/{id}", admin(rt.Tasks.Delete))

	mux.HandleFunc("POST /api/v1/employees", admin(rt.Employees.Create))
	mux.HandleFunc("GET /api/v1/employees", admin(rt.Employees.List))
	mux.HandleFunc("GET /api/v1/employees/{id}", admin(rt.Employees.Get))
	mux.HandleFunc("PATCH /api/v1/employees/{id}", admin(rt.Employees.Update))
	mux.HandleFunc("DELETE /api/v1/employees/{id}", admin(rt.Employees.Delete))

	mux.HandleFunc("GET /api/v1/notifications", admin(rt.Notifications.List))
}
