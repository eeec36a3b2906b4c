package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/doorpin/server/internal/doorpin/input"
	"github.com/doorpin/server/internal/doorpin/relay"
	"github.com/doorpin/server/internal/doorpin/service"
	"github.com/doorpin/server/internal/doorpin/store"
	"github.com/doorpin/server/internal/doorpin/types"
)

// defaultReadTimeout applies to /v1/rfids/read without a timeout parameter.
const defaultReadTimeout = 10 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.MessageResponse{Message: "ok"})
}

func (s *Server) handleAccessRequest(w http.ResponseWriter, r *http.Request) {
	var req types.AccessRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.access.Decide(r.Context(), req, store.SourceAPI)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredential):
			writeError(w, http.StatusBadRequest, "invalid_credential", err.Error())
		case errors.Is(err, relay.ErrActuator):
			writeError(w, http.StatusServiceUnavailable, "actuator_fault", "door could not be unlocked")
		default:
			s.logger.Error("access_request", slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req types.UnlockRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	if req.DurationSeconds < 0 {
		writeError(w, http.StatusBadRequest, "invalid_duration", "duration_seconds must not be negative")
		return
	}

	actor := actorFrom(r.Context())
	ticket, err := s.access.UnlockDoor(r.Context(), actor, time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOutsideSchedule):
			writeError(w, http.StatusForbidden, "outside_schedule", err.Error())
		case errors.Is(err, service.ErrInactive):
			writeError(w, http.StatusForbidden, "inactive", err.Error())
		case errors.Is(err, relay.ErrActuator):
			writeError(w, http.StatusServiceUnavailable, "actuator_fault", "door could not be unlocked")
		default:
			s.logger.Error("unlock", slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, types.UnlockResponse{
		Message:     "Door unlock initiated",
		TicketID:    ticket.ID,
		HoldSeconds: int(ticket.Hold / time.Second),
	})
}

func (s *Server) handleRfidRead(w http.ResponseWriter, r *http.Request) {
	timeout := defaultReadTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_timeout", "timeout must be a positive number of seconds")
			return
		}
		timeout = min(time.Duration(secs)*time.Second, service.MaxSingleReadTimeout)
	}

	value, ok, err := s.reader.ReadSingle(r.Context(), timeout)
	switch {
	case errors.Is(err, service.ErrBusy):
		writeError(w, http.StatusConflict, "busy", err.Error())
		return
	case errors.Is(err, service.ErrInterrupted):
		writeError(w, http.StatusConflict, "interrupted", err.Error())
		return
	case errors.Is(err, input.ErrNoDevices):
		writeError(w, http.StatusServiceUnavailable, "no_devices", "no input device available")
		return
	case err != nil:
		s.logger.Error("rfid read", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	resp := types.RfidReadResponse{TimedOut: !ok}
	if ok {
		resp.Value = value
		resp.LastFourDigits = value[max(0, len(value)-4):]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReaderStart(w http.ResponseWriter, r *http.Request) {
	if err := s.reader.Start(r.Context()); err != nil {
		if errors.Is(err, input.ErrNoDevices) {
			writeError(w, http.StatusServiceUnavailable, "no_devices", "no input device available")
			return
		}
		s.logger.Error("reader start", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal_error", "reader failed to start")
		return
	}
	writeJSON(w, http.StatusOK, types.MessageResponse{Message: "Reader started"})
}

func (s *Server) handleReaderStop(w http.ResponseWriter, _ *http.Request) {
	s.reader.Stop()
	writeJSON(w, http.StatusOK, types.MessageResponse{Message: "Reader stopped"})
}

func (s *Server) handleReaderStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.ReaderStatusResponse{
		Status:      string(s.reader.Status()),
		LiveDevices: s.reader.LiveDevices(),
	})
}
