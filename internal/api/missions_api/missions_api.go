package missions_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sengp/missionbox/internal/apperr"
	"github.com/sengp/missionbox/internal/models"
	"github.com/sengp/missionbox/internal/services/missions"
)

// Доверенная identity приходит от auth-шлюза в заголовках. Само ядро
// пароли/токены не проверяет.
const (
	headerUserID   = "X-User-Id"
	headerUserRole = "X-User-Role"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type MissionsAPI struct {
	svc *missions.Service

	// Лимит публичного трекинга, запросов в минуту с одного IP.
	// rl == nil выключает ограничение (юнит-тесты).
	rl            RateLimiter
	trackingLimit int64
}

func New(svc *missions.Service, rl RateLimiter, trackingLimitPerMinute int64) *MissionsAPI {
	if trackingLimitPerMinute <= 0 {
		trackingLimitPerMinute = 60
	}
	return &MissionsAPI{svc: svc, rl: rl, trackingLimit: trackingLimitPerMinute}
}

func (a *MissionsAPI) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/missions", a.createMission)
		r.Get("/missions", a.listMissions)
		r.Get("/missions/my-missions", a.myMissions)
		r.Get("/missions/{id}", a.getMission)
		r.Put("/missions/{id}", a.updateMission)
		r.Post("/missions/{id}/accept", a.acceptMission)
		r.Post("/missions/{id}/status", a.updateStatus)
		r.Post("/missions/{id}/qr-code", a.generateQRCode)
		r.Get("/missions/{id}/tracking", a.getTracking)

		// Публичный трекинг, без аутентификации.
		r.Get("/tracking/{trackingNumber}", a.trackByNumber)
	})
}

type envelope struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	Data       any                `json:"data,omitempty"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(env)
}

func writeData(w http.ResponseWriter, code int, data any, message string) {
	writeJSON(w, code, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, envelope{Success: false, Message: message})
}

// writeAppError мапит таксономию apperr на HTTP-коды. Внутренние ошибки
// наружу не отдаём, детали остаются в логах.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case apperr.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case apperr.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	case apperr.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("internal error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func identity(r *http.Request) (uuid.UUID, string, bool) {
	id, err := uuid.Parse(r.Header.Get(headerUserID))
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, r.Header.Get(headerUserRole), true
}

func missionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.InvalidInput("invalid mission id")
	}
	return id, nil
}

func (a *MissionsAPI) createMission(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if role != models.RoleExpediteur {
		writeError(w, http.StatusForbidden, "only expediteurs can create missions")
		return
	}

	var in models.MissionCreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := a.svc.CreateMission(r.Context(), in, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusCreated, m, "Mission created successfully")
}

func (a *MissionsAPI) getMission(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := identity(r); !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := missionID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	m, err := a.svc.GetMission(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, m, "")
}

func (a *MissionsAPI) listMissions(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := identity(r); !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	f := models.MissionFilter{
		Status:        r.URL.Query().Get("status"),
		DepartureCity: r.URL.Query().Get("departure_city"),
		ArrivalCity:   r.URL.Query().Get("arrival_city"),
	}
	a.list(w, r, f)
}

// myMissions диспетчеризует по роли: экспедитор видит свои отправления,
// GP — взятые миссии.
func (a *MissionsAPI) myMissions(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	f := models.MissionFilter{Status: r.URL.Query().Get("status")}
	switch role {
	case models.RoleExpediteur:
		f.ExpediteurID = &userID
	case models.RoleGP:
		f.GPID = &userID
	default:
		writeError(w, http.StatusForbidden, "invalid user type")
		return
	}
	a.list(w, r, f)
}

func (a *MissionsAPI) list(w http.ResponseWriter, r *http.Request, f models.MissionFilter) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)

	res, err := a.svc.ListMissions(r.Context(), f, page, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: res.Data, Pagination: &res.Pagination})
}

func (a *MissionsAPI) updateMission(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := identity(r); !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := missionID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var in models.MissionUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := a.svc.UpdateMission(r.Context(), id, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, m, "Mission updated successfully")
}

func (a *MissionsAPI) acceptMission(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if role != models.RoleGP {
		writeError(w, http.StatusForbidden, "only GPs can accept missions")
		return
	}
	id, err := missionID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var body struct {
		TripID *uuid.UUID `json:"trip_id"`
	}
	if r.Body != nil {
		// Тело опционально: accept без поездки валиден.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	m, err := a.svc.Accept(r.Context(), id, userID, body.TripID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, m, "Mission accepted successfully")
}

func (a *MissionsAPI) updateStatus(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := missionID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := a.svc.UpdateStatus(r.Context(), id, body.Status, &userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, m, "Status updated successfully")
}

func (a *MissionsAPI) generateQRCode(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := identity(r); !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := missionID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	url, err := a.svc.GenerateQRCode(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"qr_code_url": url}, "QR Code generated")
}

func (a *MissionsAPI) getTracking(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := identity(r); !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := missionID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	events, err := a.svc.GetTrackingHistory(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, events, "")
}

func (a *MissionsAPI) trackByNumber(w http.ResponseWriter, r *http.Request) {
	if a.rl != nil {
		allowed, _, err := a.rl.Allow(r.Context(), "rl:tracking:"+clientIP(r), a.trackingLimit, time.Minute)
		if err != nil {
			// Редис лёг — трекинг важнее лимита.
			slog.Warn("tracking rate limit unavailable", "err", err)
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
	}

	res, err := a.svc.TrackByNumber(r.Context(), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, res, "")
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
