package web

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vbonduro/bloom/internal/domain"
	"github.com/vbonduro/bloom/internal/service"
	"github.com/vbonduro/bloom/internal/vision"
)

type discoveryResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	AISummary     string    `json:"ai_summary"`
	PhotoURL      string    `json:"photo_url"`
	Timestamp     time.Time `json:"timestamp"`
	FormattedDate string    `json:"formatted_date"`
	ShortDate     string    `json:"short_date"`
	Recent        bool      `json:"recent"`
}

func toDiscoveryResponse(d *domain.Discovery, now time.Time) discoveryResponse {
	return discoveryResponse{
		ID:            d.ID,
		Name:          d.Name,
		AISummary:     d.AISummary,
		PhotoURL:      "/api/discoveries/" + d.ID + "/photo",
		Timestamp:     d.Timestamp,
		FormattedDate: d.FormattedDate(),
		ShortDate:     d.ShortDate(),
		Recent:        d.IsRecent(now),
	}
}

func toDiscoveryList(ds []*domain.Discovery) []discoveryResponse {
	now := time.Now()
	out := make([]discoveryResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, toDiscoveryResponse(d, now))
	}
	return out
}

func (s *Server) handleListDiscoveries(w http.ResponseWriter, r *http.Request) {
	u := s.requireUser(w)
	if u == nil {
		return
	}
	ds, err := s.journal.List(r.Context(), u.ID, r.URL.Query().Get("q"))
	if err != nil {
		s.logger.Error("list discoveries failed", "user_id", u.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load discoveries")
		return
	}
	s.writeJSON(w, http.StatusOK, toDiscoveryList(ds))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	u := s.requireUser(w)
	if u == nil {
		return
	}
	stats := s.journal.Stats(r.Context(), u.ID)
	s.writeJSON(w, http.StatusOK, map[string]int{"total_discoveries": stats.TotalDiscoveries})
}

func (s *Server) handleGetDiscovery(w http.ResponseWriter, r *http.Request) {
	u := s.requireUser(w)
	if u == nil {
		return
	}
	id := r.PathValue("id")
	d, err := s.journal.Get(r.Context(), u.ID, id)
	if err != nil {
		s.writeJournalError(w, "load discovery", id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toDiscoveryResponse(d, time.Now()))
}

func (s *Server) handleDeleteDiscovery(w http.ResponseWriter, r *http.Request) {
	u := s.requireUser(w)
	if u == nil {
		return
	}
	id := r.PathValue("id")
	if err := s.journal.Delete(r.Context(), u.ID, id); err != nil {
		s.writeJournalError(w, "delete discovery", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegenerateFact(w http.ResponseWriter, r *http.Request) {
	u := s.requireUser(w)
	if u == nil {
		return
	}
	id := r.PathValue("id")
	d, err := s.journal.RegenerateFact(r.Context(), u.ID, id)
	if err != nil {
		s.writeJournalError(w, "regenerate fact", id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toDiscoveryResponse(d, time.Now()))
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	u := s.requireUser(w)
	if u == nil {
		return
	}
	id := r.PathValue("id")
	reader, mimeType, err := s.journal.Photo(r.Context(), u.ID, id)
	if err != nil {
		if errors.Is(err, service.ErrDiscoveryNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Warn("open photo failed", "discovery_id", id, "error", err)
		s.writeError(w, http.StatusNotFound, "photo not available")
		return
	}
	defer closeWithLog(reader, "photo reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write photo failed", "discovery_id", id, "error", err)
	}
}

func (s *Server) writeJournalError(w http.ResponseWriter, op, id string, err error) {
	var visionErr *vision.Error
	switch {
	case errors.Is(err, service.ErrDiscoveryNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrFactsUnsupported):
		s.writeError(w, http.StatusNotImplemented, err.Error())
	case errors.As(err, &visionErr), vision.IsParseError(err):
		s.logger.Error(op+" failed", "discovery_id", id, "error", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error(op+" failed", "discovery_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
