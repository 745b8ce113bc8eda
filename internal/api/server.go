// Package api serves the local control API used by the detoxd CLI.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
	"github.com/eliteGoblin/focusd/detox/internal/history"
	"github.com/eliteGoblin/focusd/detox/internal/schedule"
	"github.com/eliteGoblin/focusd/detox/internal/selector"
	"github.com/eliteGoblin/focusd/detox/internal/usecase"
)

// Engine is the subset of the session controller the API drives.
type Engine interface {
	Status() usecase.Status
	Start(ctx context.Context, minutes int) (domain.Session, error)
	EmergencyUnlock() (usecase.StopResult, error)
	PremiumUnlock() (usecase.StopResult, error)
	Cancel() (usecase.StopResult, error)
	History() []domain.LockSession
	Summary() history.Summary
	Whitelist() []string
	SetWhitelist(ids []string) error
	AddWhitelisted(id string) (bool, error)
	RemoveWhitelisted(id string) (bool, error)
	Schedule() domain.ScheduleWindow
	SetSchedule(w domain.ScheduleWindow) error
	RequestPurchaseFlow()
	OnPurchaseCompleted()
	BeginEditing()
	EndEditing()
	Preview(minutes int)
}

var _ Engine = (*usecase.Controller)(nil)

// NoticeReader returns recent notices, oldest first.
type NoticeReader interface {
	Recent(limit int) []domain.Notice
}

// Server is the HTTP control surface. It owns the duration selector that
// remote dials and text fields drive; commits and editing notifications
// flow from it into the engine.
type Server struct {
	engine  Engine
	notices NoticeReader
	metrics http.Handler
	router  *mux.Router
	logger  *zap.Logger

	selMu    sync.Mutex
	selector *selector.Selector
}

// NewServer wires the routes. notices and metrics may be nil.
func NewServer(engine Engine, notices NoticeReader, metrics http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	st := engine.Status()
	s := &Server{
		engine:  engine,
		notices: notices,
		metrics: metrics,
		router:  mux.NewRouter(),
		logger:  logger,
	}
	s.selector = selector.New(st.MaxMinutes, st.PreviewMinutes,
		selector.WithCommit(engine.Preview),
		selector.WithEditingListener(engine))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/session", s.handleStart).Methods(http.MethodPost)
	v1.HandleFunc("/session/unlock", s.handleUnlock).Methods(http.MethodPost)
	v1.HandleFunc("/session/cancel", s.handleCancel).Methods(http.MethodPost)
	v1.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	v1.HandleFunc("/history/summary", s.handleSummary).Methods(http.MethodGet)
	v1.HandleFunc("/whitelist", s.handleGetWhitelist).Methods(http.MethodGet)
	v1.HandleFunc("/whitelist", s.handleSetWhitelist).Methods(http.MethodPut)
	v1.HandleFunc("/whitelist/{app}", s.handleAddWhitelisted).Methods(http.MethodPost)
	v1.HandleFunc("/whitelist/{app}", s.handleRemoveWhitelisted).Methods(http.MethodDelete)
	v1.HandleFunc("/schedule", s.handleGetSchedule).Methods(http.MethodGet)
	v1.HandleFunc("/schedule", s.handleSetSchedule).Methods(http.MethodPut)
	v1.HandleFunc("/purchase/request", s.handlePurchaseRequest).Methods(http.MethodPost)
	v1.HandleFunc("/purchase/complete", s.handlePurchaseComplete).Methods(http.MethodPost)
	v1.HandleFunc("/selector", s.handleGetSelector).Methods(http.MethodGet)
	v1.HandleFunc("/selector", s.handleSelector).Methods(http.MethodPost)
	v1.HandleFunc("/notices", s.handleNotices).Methods(http.MethodGet)
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HTTPServer returns an http.Server listening on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartRequest starts a session. Text is parsed by the duration selector;
// with neither field set the selector's current value is used.
type StartRequest struct {
	Minutes int    `json:"minutes,omitempty"`
	Text    string `json:"text,omitempty"`
}

// UnlockRequest stops a session early.
type UnlockRequest struct {
	Premium bool `json:"premium,omitempty"`
}

// WhitelistRequest replaces the whitelist.
type WhitelistRequest struct {
	Apps []string `json:"apps"`
}

// WhitelistChange reports whether an add or remove changed anything.
type WhitelistChange struct {
	App     string `json:"app"`
	Changed bool   `json:"changed"`
}

// ScheduleRequest sets the daily window in "HH:MM" form.
type ScheduleRequest struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Pointer gesture phases.
const (
	PointerBegin = "begin"
	PointerMove  = "move"
	PointerEnd   = "end"
)

// PointerInput is one step of a drag around the dial, in coordinates
// relative to the dial center.
type PointerInput struct {
	Phase string  `json:"phase"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// SelectorRequest carries exactly one selector input.
type SelectorRequest struct {
	Text    *string       `json:"text,omitempty"`
	Angle   *float64      `json:"angle,omitempty"`
	Pointer *PointerInput `json:"pointer,omitempty"`
}

// SelectorResponse is the selector state after an input.
type SelectorResponse struct {
	Minutes    int     `json:"minutes"`
	Angle      float64 `json:"angle"`
	Editing    bool    `json:"editing"`
	MaxMinutes int     `json:"max_minutes"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}

	minutes := req.Minutes
	s.selMu.Lock()
	switch {
	case req.Text != "":
		var err error
		if minutes, err = s.selector.SetFromText(req.Text); err != nil {
			s.selMu.Unlock()
			s.writeError(w, fmt.Errorf("duration %q: %w", req.Text, err))
			return
		}
	case minutes == 0:
		minutes = s.selector.Minutes()
	}
	s.selMu.Unlock()

	if minutes < 1 {
		s.writeError(w, fmt.Errorf("no duration selected: %w", domain.ErrInvalidDuration))
		return
	}
	sess, err := s.engine.Start(r.Context(), minutes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}

	var (
		res usecase.StopResult
		err error
	)
	if req.Premium {
		res, err = s.engine.PremiumUnlock()
	} else {
		res, err = s.engine.EmergencyUnlock()
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Cancel()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records := s.engine.History()
	if records == nil {
		records = []domain.LockSession{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Summary())
}

func (s *Server) handleGetWhitelist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, WhitelistRequest{Apps: nonNil(s.engine.Whitelist())})
}

func (s *Server) handleSetWhitelist(w http.ResponseWriter, r *http.Request) {
	var req WhitelistRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.SetWhitelist(req.Apps); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WhitelistRequest{Apps: nonNil(s.engine.Whitelist())})
}

func (s *Server) handleAddWhitelisted(w http.ResponseWriter, r *http.Request) {
	app := mux.Vars(r)["app"]
	added, err := s.engine.AddWhitelisted(app)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WhitelistChange{App: app, Changed: added})
}

func (s *Server) handleRemoveWhitelisted(w http.ResponseWriter, r *http.Request) {
	app := mux.Vars(r)["app"]
	removed, err := s.engine.RemoveWhitelisted(app)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WhitelistChange{App: app, Changed: removed})
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scheduleResponse(s.engine.Schedule()))
}

func (s *Server) handleSetSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if !s.decode(w, r, &req) {
		return
	}
	win, err := schedule.ParseWindow(req.Start, req.End)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeBadRequest})
		return
	}
	win.Enabled = req.Enabled
	if err := s.engine.SetSchedule(win); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse(win))
}

func (s *Server) handlePurchaseRequest(w http.ResponseWriter, r *http.Request) {
	s.engine.RequestPurchaseFlow()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePurchaseComplete(w http.ResponseWriter, r *http.Request) {
	s.engine.OnPurchaseCompleted()
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleGetSelector(w http.ResponseWriter, r *http.Request) {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	writeJSON(w, http.StatusOK, s.selectorStateLocked())
}

func (s *Server) handleSelector(w http.ResponseWriter, r *http.Request) {
	var req SelectorRequest
	if !s.decode(w, r, &req) {
		return
	}
	inputs := 0
	for _, set := range []bool{req.Text != nil, req.Angle != nil, req.Pointer != nil} {
		if set {
			inputs++
		}
	}
	if inputs != 1 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "exactly one of text, angle or pointer is required",
			Code:  CodeBadRequest,
		})
		return
	}

	s.selMu.Lock()
	defer s.selMu.Unlock()

	switch {
	case req.Text != nil:
		if _, err := s.selector.SetFromText(*req.Text); err != nil {
			s.writeError(w, fmt.Errorf("duration %q: %w", *req.Text, err))
			return
		}
	case req.Angle != nil:
		s.selector.SetFromAngle(*req.Angle)
	default:
		p := req.Pointer
		switch p.Phase {
		case PointerBegin:
			s.selector.BeginDrag(p.X, p.Y)
		case PointerMove:
			if !s.selector.Editing() {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "no drag in progress", Code: CodeBadRequest})
				return
			}
			s.selector.DragTo(p.X, p.Y)
		case PointerEnd:
			s.selector.EndDrag()
		default:
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("unknown pointer phase %q", p.Phase),
				Code:  CodeBadRequest,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, s.selectorStateLocked())
}

func (s *Server) selectorStateLocked() SelectorResponse {
	return SelectorResponse{
		Minutes:    s.selector.Minutes(),
		Angle:      s.selector.Angle(),
		Editing:    s.selector.Editing(),
		MaxMinutes: s.selector.MaxMinutes(),
	}
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	if s.notices == nil {
		writeJSON(w, http.StatusOK, []domain.Notice{})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer", Code: CodeBadRequest})
			return
		}
		limit = n
	}
	notices := s.notices.Recent(limit)
	if notices == nil {
		notices = []domain.Notice{}
	}
	writeJSON(w, http.StatusOK, notices)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid request body: %v", err),
			Code:  CodeBadRequest,
		})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("code", code), zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ScheduleResponse is the wire form of a schedule window.
type ScheduleResponse struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func scheduleResponse(w domain.ScheduleWindow) ScheduleResponse {
	return ScheduleResponse{Enabled: w.Enabled, Start: w.Start().String(), End: w.End().String()}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

