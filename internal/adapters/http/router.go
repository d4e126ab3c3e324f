// Package http exposes the escrow engine's REST surface.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(handler *Handler, jwtSecret string, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	if registry != nil {
		metrics := NewMetrics(registry)
		r.Use(metrics.middleware)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w, http.StatusOK, "ok", nil) })
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w, http.StatusOK, "ready", nil) })

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(jwtSecret))

			r.Post("/projects", handler.createProject)
			r.Get("/projects/{project_id}", handler.getProject)
			r.Post("/projects/{project_id}/milestones", handler.addMilestone)
			r.Get("/projects/{project_id}/milestones", handler.listMilestones)
			r.Post("/projects/{project_id}/deposits", handler.deposit)
			r.Get("/projects/{project_id}/balance", handler.getBalance)
			r.Get("/projects/{project_id}/transactions", handler.listTransactions)
			r.Get("/transitions", handler.transitionFeed)

			r.Get("/milestones/{milestone_id}", handler.getMilestone)
			r.Post("/milestones/{milestone_id}/start", handler.startMilestone)
			r.Post("/milestones/{milestone_id}/submit", handler.submitMilestone)
			r.Post("/milestones/{milestone_id}/approve", handler.approveMilestone)
			r.Post("/milestones/{milestone_id}/request-revision", handler.requestRevision)
			r.Post("/milestones/{milestone_id}/resume", handler.resumeMilestone)
			r.Post("/milestones/{milestone_id}/cancel", handler.cancelMilestone)
			r.Post("/milestones/{milestone_id}/disputes", handler.raiseDispute)

			r.Get("/disputes/{dispute_id}", handler.getDispute)
			r.Post("/disputes/{dispute_id}/fee", handler.payDisputeFee)
			r.Post("/disputes/{dispute_id}/evidence", handler.submitEvidence)
			r.Post("/disputes/{dispute_id}/self-resolution", handler.proposeSelfResolution)
			r.Post("/disputes/{dispute_id}/escalate", handler.escalateDispute)
			r.Post("/disputes/{dispute_id}/resolve", handler.resolveDispute)

			r.Post("/admin/disputes/{dispute_id}/mediator", handler.assignMediator)
			r.Post("/admin/disputes/{dispute_id}/arbitrator", handler.assignArbitrator)
			r.Post("/admin/disputes/{dispute_id}/advisory", handler.attachAdvisory)
		})
	})
	return r
}
