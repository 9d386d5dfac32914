package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/whatsassist/gateway/internal/backend"
)

// DashboardHandlers forward authenticated dashboard calls to the backend.
type DashboardHandlers struct {
	client *backend.Client
	logger *logrus.Logger
}

func NewDashboardHandlers(client *backend.Client, logger *logrus.Logger) *DashboardHandlers {
	return &DashboardHandlers{
		client: client,
		logger: logger,
	}
}

func (h *DashboardHandlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, h.client.ListTasks)
}

func (h *DashboardHandlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || !json.Valid(body) {
		respondWithMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.forward(w, r, func(ctx context.Context) (json.RawMessage, error) {
		return h.client.CreateTask(ctx, body)
	})
}

func (h *DashboardHandlers) ToggleTask(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	h.forward(w, r, func(ctx context.Context) (json.RawMessage, error) {
		return h.client.ToggleTaskComplete(ctx, name)
	})
}

func (h *DashboardHandlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	h.forward(w, r, func(ctx context.Context) (json.RawMessage, error) {
		return h.client.DeleteTask(ctx, name)
	})
}

func (h *DashboardHandlers) ListNotes(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, h.client.ListNotes)
}

func (h *DashboardHandlers) ListImportantMessages(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, h.client.ListImportantMessages)
}

func (h *DashboardHandlers) ListSimpleMessages(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, h.client.ListSimpleMessages)
}

func (h *DashboardHandlers) forward(w http.ResponseWriter, r *http.Request, call func(context.Context) (json.RawMessage, error)) {
	payload, err := call(r.Context())
	if err != nil {
		var statusErr *backend.StatusError
		switch {
		case errors.As(err, &statusErr):
			w.Header().Set("Content-Type", statusErr.ContentType)
			w.WriteHeader(statusErr.Status)
			w.Write(statusErr.Body)
		case errors.Is(err, backend.ErrUnavailable):
			respondWithMessage(w, http.StatusBadGateway, "Backend unavailable")
		default:
			h.logger.WithError(err).Error("Dashboard request failed")
			respondWithMessage(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}
