package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *API) NewRouter() (http.Handler, error) {
	swagger, err := GetSwagger()
	if err != nil {
		return nil, err
	}
	// Clear servers so the validator matches on path only, whatever host
	// the site is served from.
	swagger.Servers = nil

	r := chi.NewRouter()
	r.Use(
		a.requestIdMiddleware(),
		a.loggingMiddleware(),
		a.recoverMiddleware(),
		a.corsMiddleware(),
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Message: "Method not allowed"})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.settings.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(a.openapiValidateMiddleware(swagger))

		r.Post("/register", a.postRegister)
		r.Get("/attendees/count", a.getAttendeesCount)
		r.Get("/event", a.getEvent)

		r.Route("/payment", func(r chi.Router) {
			r.Post("/create-order", a.postCreateOrder)
			r.Post("/verify", a.postVerifyPayment)
			r.Post("/cancel", a.postCancelPayment)
			r.Get("/order/{orderId}", a.getPaymentOrder)
			r.Get("/details/{paymentId}", a.getPaymentDetails)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(a.adminTokenMiddleware())

			r.Get("/attendees", a.getAdminAttendees)
			r.Get("/attendees/{id}", a.getAdminAttendee)
		})
	})

	return r, nil
}
