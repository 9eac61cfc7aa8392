package missions_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sengp/missionbox/internal/apperr"
	"github.com/sengp/missionbox/internal/models"
	"github.com/sengp/missionbox/internal/services/missions"
	"github.com/sengp/missionbox/internal/storage/pgmissions"
)

type repo struct {
	mission   *models.Mission
	acceptErr error
	statusErr error
	events    []*models.TrackingEvent
}

func (r *repo) CreateMission(ctx context.Context, p pgmissions.CreateMissionParams) (*models.Mission, error) {
	m := *r.mission
	m.ID = p.ID
	m.MissionCode = p.MissionCode
	m.TrackingNumber = p.TrackingNumber
	m.ExpediteurID = p.ExpediteurID
	m.InsuranceCost = p.InsuranceCost
	return &m, nil
}
func (r *repo) GetMissionByID(ctx context.Context, id uuid.UUID) (*models.Mission, error) {
	if r.mission == nil || r.mission.ID != id {
		return nil, apperr.NotFound("mission")
	}
	return r.mission, nil
}
func (r *repo) GetMissionByTrackingNumber(ctx context.Context, n string) (*models.Mission, error) {
	if r.mission == nil || r.mission.TrackingNumber != n {
		return nil, apperr.NotFound("tracking number")
	}
	return r.mission, nil
}
func (r *repo) UpdateMission(ctx context.Context, id uuid.UUID, in models.MissionUpdateInput) (*models.Mission, error) {
	return r.mission, nil
}
func (r *repo) SetQRCode(ctx context.Context, id uuid.UUID, url, data string) error { return nil }
func (r *repo) AcceptMission(ctx context.Context, missionID, gpID uuid.UUID, tripID *uuid.UUID) (*models.Mission, error) {
	if r.acceptErr != nil {
		return nil, r.acceptErr
	}
	m := *r.mission
	m.Status = models.MissionStatusAccepted
	m.GPID = &gpID
	return &m, nil
}
func (r *repo) UpdateMissionStatus(ctx context.Context, missionID uuid.UUID, newStatus string, actorID *uuid.UUID) (*models.Mission, string, error) {
	if r.statusErr != nil {
		return nil, "", r.statusErr
	}
	prev := r.mission.Status
	m := *r.mission
	m.Status = newStatus
	return &m, prev, nil
}
func (r *repo) ListMissions(ctx context.Context, f models.MissionFilter, page, limit int) (*models.MissionPage, error) {
	return &models.MissionPage{
		Data:       []*models.Mission{r.mission},
		Pagination: models.Pagination{Page: page, Limit: limit, Total: 1, TotalPages: 1},
	}, nil
}
func (r *repo) ListTrackingEvents(ctx context.Context, missionID uuid.UUID) ([]*models.TrackingEvent, error) {
	return r.events, nil
}

type denyAfter struct {
	allow int64
	seen  int64
}

func (d *denyAfter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	d.seen++
	return d.seen <= d.allow, d.seen, nil
}

func newTestRouter(r *repo, rl RateLimiter) *chi.Mux {
	svc := missions.New(r, nil, nil, "", 0)
	api := New(svc, rl, 60)
	mux := chi.NewRouter()
	api.Routes(mux)
	return mux
}

func baseMission() *models.Mission {
	return &models.Mission{
		ID:             uuid.New(),
		MissionCode:    "MIS-2026-000123",
		TrackingNumber: "SGABCDEF",
		ExpediteurID:   uuid.New(),
		Status:         models.MissionStatusPending,
		PackageWeight:  2,
		OfferedPrice:   10_000,
	}
}

func doJSON(t *testing.T, mux *chi.Mux, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func asExpediteur(id uuid.UUID) map[string]string {
	return map[string]string{headerUserID: id.String(), headerUserRole: models.RoleExpediteur}
}

func asGP(id uuid.UUID) map[string]string {
	return map[string]string{headerUserID: id.String(), headerUserRole: models.RoleGP}
}

func TestCreateMission(t *testing.T) {
	mux := newTestRouter(&repo{mission: baseMission()}, nil)

	body := map[string]any{
		"departure_country": "SN", "departure_city": "Dakar", "pickup_address": "a",
		"arrival_country": "FR", "arrival_city": "Paris", "delivery_address": "b",
		"package_weight": 3.5, "package_value": 100000, "offered_price": 25000,
	}

	// Без identity — 401.
	rec := doJSON(t, mux, http.MethodPost, "/api/v1/missions", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// GP создавать не может.
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/missions", body, asGP(uuid.New()))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/missions", body, asExpediteur(uuid.New()))
	require.Equal(t, http.StatusCreated, rec.Code)

	var env struct {
		Success bool           `json:"success"`
		Data    models.Mission `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success)
	require.Equal(t, int64(2000), env.Data.InsuranceCost)
	require.Regexp(t, `^MIS-\d{4}-\d{6}$`, env.Data.MissionCode)
}

func TestCreateMission_MissingFields(t *testing.T) {
	mux := newTestRouter(&repo{mission: baseMission()}, nil)
	rec := doJSON(t, mux, http.MethodPost, "/api/v1/missions",
		map[string]any{"departure_city": "Dakar"}, asExpediteur(uuid.New()))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcceptMission(t *testing.T) {
	m := baseMission()
	mux := newTestRouter(&repo{mission: m}, nil)
	gp := uuid.New()

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/missions/"+m.ID.String()+"/accept",
		map[string]any{}, asExpediteur(uuid.New()))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/missions/"+m.ID.String()+"/accept",
		map[string]any{}, asGP(gp))
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data models.Mission `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, models.MissionStatusAccepted, env.Data.Status)
	require.Equal(t, gp, *env.Data.GPID)
}

func TestAcceptMission_Conflict(t *testing.T) {
	m := baseMission()
	mux := newTestRouter(&repo{mission: m, acceptErr: apperr.Conflict("mission is no longer available")}, nil)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/missions/"+m.ID.String()+"/accept",
		map[string]any{}, asGP(uuid.New()))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateStatus_TerminalConflict(t *testing.T) {
	m := baseMission()
	mux := newTestRouter(&repo{mission: m, statusErr: apperr.Conflict("cannot move mission from delivered to cancelled")}, nil)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/missions/"+m.ID.String()+"/status",
		map[string]any{"status": models.MissionStatusCancelled}, asGP(uuid.New()))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	m := baseMission()
	mux := newTestRouter(&repo{mission: m}, nil)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/missions/"+m.ID.String()+"/status",
		map[string]any{"status": "teleported"}, asGP(uuid.New()))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMission_NotFound(t *testing.T) {
	mux := newTestRouter(&repo{mission: baseMission()}, nil)
	rec := doJSON(t, mux, http.MethodGet, "/api/v1/missions/"+uuid.NewString(), nil, asExpediteur(uuid.New()))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMyMissions_RoleDispatch(t *testing.T) {
	mux := newTestRouter(&repo{mission: baseMission()}, nil)

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/missions/my-missions", nil, asExpediteur(uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/missions/my-missions", nil,
		map[string]string{headerUserID: uuid.NewString(), headerUserRole: "someone"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTrackByNumber_PublicNoAuth(t *testing.T) {
	m := baseMission()
	mux := newTestRouter(&repo{
		mission: m,
		events:  []*models.TrackingEvent{{MissionID: m.ID, Status: models.MissionStatusAccepted}},
	}, nil)

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/tracking/"+m.TrackingNumber, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data models.TrackingResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, m.TrackingNumber, env.Data.Mission.TrackingNumber)
	require.Len(t, env.Data.Events, 1)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/tracking/SGNOPE", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrackByNumber_RateLimited(t *testing.T) {
	m := baseMission()
	mux := newTestRouter(&repo{mission: m}, &denyAfter{allow: 2})

	for i := 0; i < 2; i++ {
		rec := doJSON(t, mux, http.MethodGet, "/api/v1/tracking/"+m.TrackingNumber, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := doJSON(t, mux, http.MethodGet, "/api/v1/tracking/"+m.TrackingNumber, nil, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestListMissions_PaginationEcho(t *testing.T) {
	mux := newTestRouter(&repo{mission: baseMission()}, nil)

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/missions?page=-5&limit=1000", nil, asExpediteur(uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Pagination models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, 1, env.Pagination.Page)
	require.Equal(t, 100, env.Pagination.Limit)
}
