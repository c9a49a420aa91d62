// Package audit records administrative mutations as domain events.
package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/obs"
)

const anonymousActor = "anonymous"

// HTTPRecorder records HTTP requests after they have been handled.
type HTTPRecorder struct {
	Events *events.Bus
	// Failed also records requests answered with 4xx or 5xx.
	Failed bool
}

// HTTPConfig customises how the audit entry is produced for a route.
type HTTPConfig struct {
	Action          string
	ResourceType    string
	ResourceIDParam string
}

// Middleware returns a chi-compatible middleware that records audit entries.
func (r HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if r.Events == nil {
				next.ServeHTTP(w, req)
				return
			}
			recorder := obs.NewStatusRecorder(w)
			next.ServeHTTP(recorder, req)

			status := recorder.Status()
			if status >= http.StatusBadRequest && !r.Failed {
				return
			}
			resourceID := ""
			if cfg.ResourceIDParam != "" {
				resourceID = chi.URLParam(req, cfg.ResourceIDParam)
			}
			aggregate := resourceID
			if aggregate == "" {
				aggregate = cfg.ResourceType
			}
			r.Events.Publish(req.Context(), events.TopicAdminAudit, aggregate, events.AdminAction{
				Actor:        actorOf(req),
				Action:       cfg.Action,
				ResourceType: cfg.ResourceType,
				ResourceID:   resourceID,
				Method:       req.Method,
				Path:         req.URL.Path,
				Status:       status,
				RequestID:    middleware.GetReqID(req.Context()),
			})
		})
	}
}

func actorOf(req *http.Request) string {
	if userID, ok := common.UserID(req.Context()); ok && userID != "" {
		return userID
	}
	return anonymousActor
}
