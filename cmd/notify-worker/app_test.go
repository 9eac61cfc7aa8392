package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sengp/missionbox/internal/broker/messages"
	"github.com/sengp/missionbox/internal/models"
)

type memSink struct {
	byUser map[string][][]byte
}

func (s *memSink) Push(ctx context.Context, userID string, payload []byte) error {
	if s.byUser == nil {
		s.byUser = map[string][][]byte{}
	}
	s.byUser[userID] = append(s.byUser[userID], payload)
	return nil
}

func statusEvent(t *testing.T, gpID *uuid.UUID) (messages.MissionStatusChanged, []byte) {
	t.Helper()
	m := messages.MissionStatusChanged{
		MissionID:      uuid.New(),
		MissionCode:    "MIS-2026-000042",
		TrackingNumber: "SGTEST42",
		Status:         models.MissionStatusAccepted,
		PrevStatus:     models.MissionStatusPending,
		ExpediteurID:   uuid.New(),
		GPID:           gpID,
		OccurredAt:     time.Now().UTC(),
	}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return m, b
}

func TestHandle_NotifiesExpediteurOnly(t *testing.T) {
	sink := &memSink{}
	w := &notifyWorker{sink: sink}

	m, b := statusEvent(t, nil)
	require.NoError(t, w.handle(context.Background(), b))

	require.Len(t, sink.byUser[m.ExpediteurID.String()], 1)
	require.Len(t, sink.byUser, 1)
	require.Equal(t, int64(1), w.processed.Load())
}

func TestHandle_NotifiesBothWhenGPAssigned(t *testing.T) {
	sink := &memSink{}
	w := &notifyWorker{sink: sink}

	gp := uuid.New()
	m, b := statusEvent(t, &gp)
	require.NoError(t, w.handle(context.Background(), b))

	require.Len(t, sink.byUser[m.ExpediteurID.String()], 1)
	require.Len(t, sink.byUser[gp.String()], 1)

	var got messages.MissionStatusChanged
	require.NoError(t, json.Unmarshal(sink.byUser[gp.String()][0], &got))
	require.Equal(t, m.MissionID, got.MissionID)
	require.Equal(t, models.MissionStatusAccepted, got.Status)
}

func TestHandle_SkipsMalformed(t *testing.T) {
	sink := &memSink{}
	w := &notifyWorker{sink: sink}

	// Мусор не ломает консьюмер и не попадает в очереди.
	require.NoError(t, w.handle(context.Background(), []byte("{not json")))
	require.Empty(t, sink.byUser)
	require.Equal(t, int64(1), w.dropped.Load())
}

func TestRunWorkerHTTPServer_Stats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := notifyWorkerOpts{
		httpAddr: "127.0.0.1:0",
		onListen: func(addr string) { addrCh <- addr },
	}

	w := &notifyWorker{sink: &memSink{}}
	errCh := make(chan error, 1)
	go func() { errCh <- runWorkerHTTPServer(ctx, opts, w) }()

	addr := <-addrCh
	resp, err := http.Get("http://" + addr + "/stats")
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	var stats map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	require.Contains(t, stats, "processed")

	cancel()
	select {
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting worker http to stop")
	case <-errCh:
	}
}
