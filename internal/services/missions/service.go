package missions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sengp/missionbox/internal/apperr"
	"github.com/sengp/missionbox/internal/broker/messages"
	"github.com/sengp/missionbox/internal/cache"
	"github.com/sengp/missionbox/internal/codes"
	"github.com/sengp/missionbox/internal/metrics"
	"github.com/sengp/missionbox/internal/models"
	"github.com/sengp/missionbox/internal/qr"
	"github.com/sengp/missionbox/internal/storage/pgmissions"
)

type Repository interface {
	CreateMission(ctx context.Context, p pgmissions.CreateMissionParams) (*models.Mission, error)
	GetMissionByID(ctx context.Context, id uuid.UUID) (*models.Mission, error)
	GetMissionByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Mission, error)
	UpdateMission(ctx context.Context, id uuid.UUID, in models.MissionUpdateInput) (*models.Mission, error)
	SetQRCode(ctx context.Context, id uuid.UUID, url, data string) error
	AcceptMission(ctx context.Context, missionID, gpID uuid.UUID, tripID *uuid.UUID) (*models.Mission, error)
	UpdateMissionStatus(ctx context.Context, missionID uuid.UUID, newStatus string, actorID *uuid.UUID) (*models.Mission, string, error)
	ListMissions(ctx context.Context, f models.MissionFilter, page, limit int) (*models.MissionPage, error)
	ListTrackingEvents(ctx context.Context, missionID uuid.UUID) ([]*models.TrackingEvent, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	repo     Repository
	cache    cache.BytesCache
	producer Producer
	topic    string
	trackTTL time.Duration
}

// New собирает движок жизненного цикла. cache и producer опциональны:
// без них операции работают, просто без снапшотов и фида.
func New(repo Repository, c cache.BytesCache, producer Producer, topic string, trackTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, producer: producer, topic: topic, trackTTL: trackTTL}
}

// CreateMission генерирует идентификаторы, считает страховку и пишет миссию.
// Валидация формы делается шлюзом, но свои инварианты защищаем сами.
func (s *Service) CreateMission(ctx context.Context, in models.MissionCreateInput, expediteurID uuid.UUID) (*models.Mission, error) {
	if expediteurID == uuid.Nil {
		return nil, apperr.InvalidInput("expediteur id is required")
	}
	if in.DepartureCountry == "" || in.DepartureCity == "" || in.PickupAddress == "" {
		return nil, apperr.InvalidInput("departure country, city and pickup address are required")
	}
	if in.ArrivalCountry == "" || in.ArrivalCity == "" || in.DeliveryAddress == "" {
		return nil, apperr.InvalidInput("arrival country, city and delivery address are required")
	}
	if in.PackageWeight <= 0 {
		return nil, apperr.InvalidInput("package weight must be positive")
	}
	if in.OfferedPrice <= 0 {
		return nil, apperr.InvalidInput("offered price must be positive")
	}

	// Страховка включена по умолчанию, если явно не отключена.
	insured := in.IsInsured == nil || *in.IsInsured
	var insuranceCost int64
	if insured && in.PackageValue != nil {
		insuranceCost = codes.InsuranceFee(*in.PackageValue)
	}

	m, err := s.repo.CreateMission(ctx, pgmissions.CreateMissionParams{
		ID:             uuid.New(),
		MissionCode:    codes.GenerateCode("MIS"),
		TrackingNumber: codes.GenerateTrackingNumber(),
		ExpediteurID:   expediteurID,
		IsInsured:      insured,
		InsuranceCost:  insuranceCost,
		Input:          in,
	})
	if err != nil {
		return nil, err
	}

	metrics.MissionsCreated.Inc()
	slog.Info("mission created", "missionCode", m.MissionCode, "expediteurId", expediteurID)
	return m, nil
}

func (s *Service) GetMission(ctx context.Context, id uuid.UUID) (*models.Mission, error) {
	return s.repo.GetMissionByID(ctx, id)
}

func (s *Service) UpdateMission(ctx context.Context, id uuid.UUID, in models.MissionUpdateInput) (*models.Mission, error) {
	return s.repo.UpdateMission(ctx, id, in)
}

// Accept передаёт миссию GP. Ровно один конкурентный вызов выигрывает,
// остальные получают Conflict — см. guarded update в хранилище.
func (s *Service) Accept(ctx context.Context, missionID, gpID uuid.UUID, tripID *uuid.UUID) (*models.Mission, error) {
	if gpID == uuid.Nil {
		return nil, apperr.InvalidInput("gp id is required")
	}

	m, err := s.repo.AcceptMission(ctx, missionID, gpID, tripID)
	if err != nil {
		if apperr.IsConflict(err) {
			metrics.AcceptConflicts.Inc()
		}
		return nil, err
	}

	metrics.StatusTransitions.WithLabelValues(models.MissionStatusAccepted).Inc()
	slog.Info("mission accepted", "missionId", missionID, "gpId", gpID)
	s.publishStatusChanged(ctx, m, models.MissionStatusPending, &gpID)
	s.invalidateTracking(ctx, m.TrackingNumber)
	return m, nil
}

// UpdateStatus двигает миссию по таблице переходов и пишет запись журнала.
func (s *Service) UpdateStatus(ctx context.Context, missionID uuid.UUID, newStatus string, actorID *uuid.UUID) (*models.Mission, error) {
	if !models.IsValidStatus(newStatus) {
		return nil, apperr.InvalidInput("unknown status: " + newStatus)
	}

	m, prev, err := s.repo.UpdateMissionStatus(ctx, missionID, newStatus, actorID)
	if err != nil {
		return nil, err
	}

	metrics.StatusTransitions.WithLabelValues(newStatus).Inc()
	slog.Info("mission status updated", "missionId", missionID, "status", newStatus, "prev", prev)
	s.publishStatusChanged(ctx, m, prev, actorID)
	s.invalidateTracking(ctx, m.TrackingNumber)
	return m, nil
}

func (s *Service) GenerateQRCode(ctx context.Context, missionID uuid.UUID) (string, error) {
	m, err := s.repo.GetMissionByID(ctx, missionID)
	if err != nil {
		return "", err
	}

	url, data, err := qr.Encode(qr.Payload{
		MissionCode:    m.MissionCode,
		TrackingNumber: m.TrackingNumber,
		ID:             m.ID,
	})
	if err != nil {
		return "", err
	}

	if err := s.repo.SetQRCode(ctx, missionID, url, data); err != nil {
		return "", err
	}
	return url, nil
}

func (s *Service) GetTrackingHistory(ctx context.Context, missionID uuid.UUID) ([]*models.TrackingEvent, error) {
	return s.repo.ListTrackingEvents(ctx, missionID)
}

// TrackByNumber — публичный трекинг: миссия + вся история. Снапшот кэшируем
// целиком как JSON, best effort.
func (s *Service) TrackByNumber(ctx context.Context, trackingNumber string) (*models.TrackingResult, error) {
	if trackingNumber == "" {
		return nil, apperr.InvalidInput("tracking number is required")
	}

	key := trackingKey(trackingNumber)
	if s.cache != nil && s.trackTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var res models.TrackingResult
			if json.Unmarshal(b, &res) == nil {
				metrics.TrackingLookups.WithLabelValues("found").Inc()
				return &res, nil
			}
		}
	}

	m, err := s.repo.GetMissionByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		if apperr.IsNotFound(err) {
			metrics.TrackingLookups.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}
	events, err := s.repo.ListTrackingEvents(ctx, m.ID)
	if err != nil {
		return nil, err
	}

	res := &models.TrackingResult{Mission: m, Events: events}
	if s.cache != nil && s.trackTTL > 0 {
		if b, err := json.Marshal(res); err == nil {
			_ = s.cache.Set(ctx, key, b, s.trackTTL)
		}
	}
	metrics.TrackingLookups.WithLabelValues("found").Inc()
	return res, nil
}

// ListMissions нормализует пагинацию: page >= 1, limit в [1, 100].
func (s *Service) ListMissions(ctx context.Context, f models.MissionFilter, page, limit int) (*models.MissionPage, error) {
	if f.Status != "" && !models.IsValidStatus(f.Status) {
		return nil, apperr.InvalidInput("unknown status: " + f.Status)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.ListMissions(ctx, f, page, limit)
}

func (s *Service) publishStatusChanged(ctx context.Context, m *models.Mission, prevStatus string, actorID *uuid.UUID) {
	if s.producer == nil || s.topic == "" {
		return
	}
	msg := messages.MissionStatusChanged{
		MissionID:      m.ID,
		MissionCode:    m.MissionCode,
		TrackingNumber: m.TrackingNumber,
		Status:         m.Status,
		PrevStatus:     prevStatus,
		ExpediteurID:   m.ExpediteurID,
		GPID:           m.GPID,
		ActorID:        actorID,
		OccurredAt:     m.UpdatedAt,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	// Фид — best effort: переход уже закоммичен, журнал — источник истины.
	if err := s.producer.Publish(ctx, s.topic, []byte(m.ID.String()), b); err != nil {
		slog.Warn("publish status event failed", "missionId", m.ID, "err", err)
	}
}

func (s *Service) invalidateTracking(ctx context.Context, trackingNumber string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, trackingKey(trackingNumber))
}

func trackingKey(trackingNumber string) string {
	return fmt.Sprintf("mission:%s:tracking", trackingNumber)
}
