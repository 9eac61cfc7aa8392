package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sengp/missionbox/internal/apperr"
	"github.com/sengp/missionbox/internal/models"
	"github.com/sengp/missionbox/internal/services/missions"
	"github.com/sengp/missionbox/internal/storage/pgmissions"
)

type fakeRepo struct{}

func (r *fakeRepo) CreateMission(ctx context.Context, p pgmissions.CreateMissionParams) (*models.Mission, error) {
	return &models.Mission{ID: p.ID, MissionCode: p.MissionCode, TrackingNumber: p.TrackingNumber, Status: models.MissionStatusPending}, nil
}
func (r *fakeRepo) GetMissionByID(ctx context.Context, id uuid.UUID) (*models.Mission, error) {
	return nil, apperr.NotFound("mission")
}
func (r *fakeRepo) GetMissionByTrackingNumber(ctx context.Context, n string) (*models.Mission, error) {
	return nil, apperr.NotFound("tracking number")
}
func (r *fakeRepo) UpdateMission(ctx context.Context, id uuid.UUID, in models.MissionUpdateInput) (*models.Mission, error) {
	return nil, apperr.NotFound("mission")
}
func (r *fakeRepo) SetQRCode(ctx context.Context, id uuid.UUID, url, data string) error { return nil }
func (r *fakeRepo) AcceptMission(ctx context.Context, missionID, gpID uuid.UUID, tripID *uuid.UUID) (*models.Mission, error) {
	return nil, apperr.NotFound("mission")
}
func (r *fakeRepo) UpdateMissionStatus(ctx context.Context, missionID uuid.UUID, newStatus string, actorID *uuid.UUID) (*models.Mission, string, error) {
	return nil, "", apperr.NotFound("mission")
}
func (r *fakeRepo) ListMissions(ctx context.Context, f models.MissionFilter, page, limit int) (*models.MissionPage, error) {
	return &models.MissionPage{Data: []*models.Mission{}, Pagination: models.Pagination{Page: page, Limit: limit}}, nil
}
func (r *fakeRepo) ListTrackingEvents(ctx context.Context, missionID uuid.UUID) ([]*models.TrackingEvent, error) {
	return []*models.TrackingEvent{}, nil
}

func TestRunMissionAPI_SwaggerAndHealthServed(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	svc := missions.New(&fakeRepo{}, nil, nil, "", time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := missionAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: sw,
		onListen:    func(httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runMissionAPI(ctx, opts, svc, nil)
	}()

	httpAddr := <-addrCh

	resp, err := http.Get("http://" + httpAddr + "/swagger.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(body), "\"swagger\"")

	resp, err = http.Get("http://" + httpAddr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	resp, err = http.Get("http://" + httpAddr + "/api/v1/missions/" + uuid.NewString())
	require.NoError(t, err)
	resp.Body.Close()
	// Без identity в заголовках — 401.
	require.Equal(t, 401, resp.StatusCode)

	cancel()

	select {
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting server to stop")
	case err := <-errCh:
		// Штатная остановка отдаёт отмену контекста, main её не считает сбоем.
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestRunMissionAPI_RequiresSwagger(t *testing.T) {
	svc := missions.New(&fakeRepo{}, nil, nil, "", time.Minute)
	err := runMissionAPI(context.Background(), missionAPIOpts{httpAddr: "127.0.0.1:0"}, svc, nil)
	require.Error(t, err)
}
