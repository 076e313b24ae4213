package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jaminalder/tictactoe-web/internal/app"
	"github.com/jaminalder/tictactoe-web/internal/domain"
	"github.com/jaminalder/tictactoe-web/internal/history"
)

const recentLimit = 10

type handlers struct {
	svc      *app.Service
	tpl      *templates
	validate *validator.Validate
	log      *slog.Logger
}

type cellForm struct {
	Index *int `validate:"required,min=0,max=8"`
}

type modeForm struct {
	Mode domain.Mode `validate:"required,gamemode"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("gamemode", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseMode(fl.Field().String())
		return err == nil
	})
	return v
}

func (h *handlers) renderBoard(gs app.GameState) []byte {
	return renderTemplate(h.tpl.board, newBoardView(gs))
}

func (h *handlers) writeBoard(w http.ResponseWriter, gs *app.GameState) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(h.renderBoard(*gs))
}

// open returns the caller's session, creating cookie and session as needed.
func (h *handlers) open(w http.ResponseWriter, r *http.Request) (string, *app.GameState, bool) {
	id := ensureSessionCookie(w, r)
	gs, err := h.svc.Open(r.Context(), id)
	if err != nil {
		h.log.Error("could not open session", "session", id, "error", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return "", nil, false
	}
	return id, gs, true
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	_, gs, ok := h.open(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(renderTemplate(h.tpl.page, newBoardView(*gs)))
}

// result picks what to render after an operation. Rejected moves are not
// errors for the player: the unchanged board is shown again.
func (h *handlers) result(w http.ResponseWriter, current, next *app.GameState, err error) {
	switch {
	case next != nil:
		h.writeBoard(w, next)
	case errors.Is(err, app.ErrNotFound):
		h.writeBoard(w, current)
	default:
		h.log.Error("operation failed", "session", current.ID, "error", err)
		http.Error(w, "operation failed", http.StatusInternalServerError)
	}
}

func (h *handlers) cell(w http.ResponseWriter, r *http.Request) {
	id, gs, ok := h.open(w, r)
	if !ok {
		return
	}
	_ = r.ParseForm()
	var form cellForm
	if idx, err := strconv.Atoi(r.Form.Get("index")); err == nil {
		form.Index = &idx
	}
	if err := h.validate.Struct(form); err != nil {
		h.log.Debug("invalid cell form", "session", id, "error", err)
		h.writeBoard(w, gs)
		return
	}
	next, err := h.svc.Select(r.Context(), id, *form.Index)
	h.result(w, gs, next, err)
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	id, gs, ok := h.open(w, r)
	if !ok {
		return
	}
	next, err := h.svc.Reset(r.Context(), id)
	h.result(w, gs, next, err)
}

func (h *handlers) mode(w http.ResponseWriter, r *http.Request) {
	id, gs, ok := h.open(w, r)
	if !ok {
		return
	}
	_ = r.ParseForm()
	form := modeForm{Mode: domain.Mode(r.Form.Get("mode"))}
	if err := h.validate.Struct(form); err != nil {
		h.log.Debug("invalid mode form", "session", id, "error", err)
		h.writeBoard(w, gs)
		return
	}
	next, err := h.svc.SetMode(r.Context(), id, form.Mode)
	h.result(w, gs, next, err)
}

type stateResponse struct {
	ID          string           `json:"id"`
	Mode        domain.Mode      `json:"mode"`
	State       string           `json:"state"`
	Board       domain.Board     `json:"board"`
	Current     domain.Cell      `json:"current"`
	Active      bool             `json:"active"`
	Message     string           `json:"message"`
	WinningLine []int            `json:"winning_line,omitempty"`
	Tally       map[string]int   `json:"tally"`
	Recent      []history.Result `json:"recent"`
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	_, gs, ok := h.open(w, r)
	if !ok {
		return
	}
	s := gs.Session
	resp := stateResponse{
		ID:      gs.ID,
		Mode:    s.Mode(),
		State:   s.State().String(),
		Board:   s.Board,
		Current: s.Current,
		Active:  s.Active,
		Message: s.Message(),
		Tally:   map[string]int{"X": gs.Tally.X, "O": gs.Tally.O, "draws": gs.Tally.Draws},
	}
	if s.Outcome.Kind == domain.Win {
		resp.WinningLine = s.Outcome.Line[:]
	}
	recent, err := h.svc.Recent(r.Context(), gs.ID, recentLimit)
	if err != nil {
		h.log.Warn("could not list recent games", "session", gs.ID, "error", err)
	}
	resp.Recent = recent
	if resp.Recent == nil {
		resp.Recent = []history.Result{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

var heartbeatInterval = 15 * time.Second

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	id := ensureSessionCookie(w, r)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	// In tests or non-EventSource requests, just acknowledge headers and return
	if r.Header.Get("Accept") != "text/event-stream" {
		w.WriteHeader(http.StatusOK)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()
	ch, unsub := h.svc.Subscribe(ctx, id)
	defer unsub()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	flusher.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case b, ok := <-ch:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "event: board\n")
			// a data field may not contain a newline
			for _, line := range bytes.Split(b, []byte("\n")) {
				_, _ = fmt.Fprintf(w, "data: %s\n", line)
			}
			_, _ = io.WriteString(w, "\n")
			flusher.Flush()
		}
	}
}
