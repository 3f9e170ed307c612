package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/sjawhar/ghost-tutor/internal/call"
	"github.com/sjawhar/ghost-tutor/internal/session"
	"github.com/sjawhar/ghost-tutor/internal/storage"
	"github.com/sjawhar/ghost-tutor/internal/ui"
)

const (
	fallbackColor = "#E5E7EB"
	maxBodyBytes  = 1 << 16
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type CallService interface {
	StartCall(ctx context.Context, companionID string, user session.User) (call.Snapshot, error)
	EndCall(ctx context.Context) error
	ToggleMute(ctx context.Context) (call.Snapshot, error)
	Snapshot() call.Snapshot
}

type Store interface {
	CreateCompanion(ctx context.Context, c storage.Companion) (storage.Companion, error)
	GetCompanion(ctx context.Context, id string) (storage.Companion, error)
	ListCompanions(ctx context.Context, subject string) ([]storage.Companion, error)
	ListHistory(ctx context.Context, limit int) ([]storage.HistoryEntry, error)
	GetHistory(ctx context.Context, callID string) (storage.HistoryEntry, error)
	GetTranscript(ctx context.Context, callID string) ([]call.TranscriptEntry, error)
}

// CompanionView is a companion with its resolved display color.
type CompanionView struct {
	storage.Companion
	Color string `json:"color"`
}

func companionView(c storage.Companion) CompanionView {
	return CompanionView{Companion: c, Color: ui.SubjectColorOr(c.Subject, fallbackColor)}
}

type startRequest struct {
	CompanionID string `json:"companion_id"`
}

type companionRequest struct {
	Name            string `json:"name"`
	Subject         string `json:"subject"`
	Topic           string `json:"topic"`
	Voice           string `json:"voice"`
	Style           string `json:"style"`
	DurationMinutes int    `json:"duration_minutes"`
}

func registerCallRoutes(mux *http.ServeMux, calls CallService, user session.User) {
	mux.HandleFunc("GET /api/call", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, calls.Snapshot())
	})

	mux.HandleFunc("POST /api/call/start", func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !idPattern.MatchString(req.CompanionID) {
			writeJSONError(w, http.StatusBadRequest, "invalid companion id")
			return
		}

		snap, err := calls.StartCall(r.Context(), req.CompanionID, user)
		switch {
		case errors.Is(err, session.ErrCompanionMissing):
			writeJSONError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, session.ErrCallInProgress):
			writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "call": snap})
		case err != nil:
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("start call: %v", err))
		default:
			writeJSON(w, http.StatusOK, snap)
		}
	})

	mux.HandleFunc("POST /api/call/end", func(w http.ResponseWriter, r *http.Request) {
		if err := calls.EndCall(r.Context()); err != nil {
			writeCallError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, calls.Snapshot())
	})

	mux.HandleFunc("POST /api/call/mute", func(w http.ResponseWriter, r *http.Request) {
		snap, err := calls.ToggleMute(r.Context())
		if err != nil {
			writeCallError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})
}

func writeCallError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNoActiveCall) {
		writeJSONError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSONError(w, http.StatusInternalServerError, err.Error())
}

func registerCompanionRoutes(mux *http.ServeMux, store Store) {
	mux.HandleFunc("GET /api/subjects", func(w http.ResponseWriter, r *http.Request) {
		subjects := ui.Subjects()
		out := make([]map[string]string, 0, len(subjects))
		for _, s := range subjects {
			out = append(out, map[string]string{"subject": s, "color": ui.SubjectColorOr(s, fallbackColor)})
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("GET /api/companions", func(w http.ResponseWriter, r *http.Request) {
		companions, err := store.ListCompanions(r.Context(), r.URL.Query().Get("subject"))
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list companions: %v", err))
			return
		}
		views := make([]CompanionView, 0, len(companions))
		for _, c := range companions {
			views = append(views, companionView(c))
		}
		writeJSON(w, http.StatusOK, views)
	})

	mux.HandleFunc("POST /api/companions", func(w http.ResponseWriter, r *http.Request) {
		var req companionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		subject := strings.ToLower(strings.TrimSpace(req.Subject))
		if _, ok := ui.SubjectColor(subject); !ok {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown subject %q", req.Subject))
			return
		}
		if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Topic) == "" {
			writeJSONError(w, http.StatusBadRequest, "name and topic are required")
			return
		}

		created, err := store.CreateCompanion(r.Context(), storage.Companion{
			Name:            strings.TrimSpace(req.Name),
			Subject:         subject,
			Topic:           strings.TrimSpace(req.Topic),
			Voice:           req.Voice,
			Style:           req.Style,
			DurationMinutes: req.DurationMinutes,
		})
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("create companion: %v", err))
			return
		}
		writeJSON(w, http.StatusCreated, companionView(created))
	})

	mux.HandleFunc("GET /api/companions/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !idPattern.MatchString(id) {
			writeJSONError(w, http.StatusForbidden, "invalid companion id")
			return
		}
		c, err := store.GetCompanion(r.Context(), id)
		if err != nil {
			writeStoreError(w, "get companion", err)
			return
		}
		writeJSON(w, http.StatusOK, companionView(c))
	})
}

func registerHistoryRoutes(mux *http.ServeMux, store Store) {
	mux.HandleFunc("GET /api/history", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 500 {
				writeJSONError(w, http.StatusBadRequest, "limit must be between 1 and 500")
				return
			}
			limit = n
		}
		entries, err := store.ListHistory(r.Context(), limit)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list history: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	mux.HandleFunc("GET /api/history/{call_id}", func(w http.ResponseWriter, r *http.Request) {
		callID := r.PathValue("call_id")
		if !idPattern.MatchString(callID) {
			writeJSONError(w, http.StatusForbidden, "invalid call id")
			return
		}
		entry, err := store.GetHistory(r.Context(), callID)
		if err != nil {
			writeStoreError(w, "get history", err)
			return
		}
		transcript, err := store.GetTranscript(r.Context(), callID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get transcript: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"call":       entry,
			"color":      ui.SubjectColorOr(entry.Subject, fallbackColor),
			"transcript": transcript,
		})
	})
}

func registerStatusRoute(mux *http.ServeMux, calls CallService, warnings func() []string) {
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var list []string
		if warnings != nil {
			list = warnings()
		}
		if list == nil {
			list = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"call_status": calls.Snapshot().Status,
			"warnings":    list,
		})
	})
}

func writeStoreError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, sql.ErrNoRows) {
		status = http.StatusNotFound
	}
	writeJSONError(w, status, fmt.Sprintf("%s: %v", op, err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
