package pgmissions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/sengp/missionbox/internal/apperr"
	"github.com/sengp/missionbox/internal/models"
)

// AcceptMission — точка гонки. Проверка "статус == pending" и сам переход
// сделаны одним guarded UPDATE: из N конкурентных вызовов ровно один увидит
// затронутую строку, остальные получат Conflict. Никаких ретраев.
func (s *Storage) AcceptMission(ctx context.Context, missionID, gpID uuid.UUID, tripID *uuid.UUID) (*models.Mission, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
UPDATE missions
SET status = $2, gp_id = $3, trip_id = $4, updated_at = now()
WHERE id = $1 AND status = $5
RETURNING`+missionColumns,
		missionID, models.MissionStatusAccepted, gpID, tripID, models.MissionStatusPending)
	m, err := scanMission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Либо миссии нет, либо её уже забрали. Различаем для вызывающего.
		var exists bool
		if qErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM missions WHERE id = $1)`, missionID).Scan(&exists); qErr != nil {
			return nil, errors.Wrap(qErr, "check mission exists")
		}
		if !exists {
			return nil, apperr.NotFound("mission")
		}
		return nil, apperr.Conflict("mission is no longer available")
	}
	if err != nil {
		return nil, errors.Wrap(err, "accept mission")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO mission_tracking (mission_id, status, description, created_by)
VALUES ($1, $2, $3, $4)
`, missionID, models.MissionStatusAccepted, "Mission accepted by GP", gpID)
	if err != nil {
		return nil, errors.Wrap(err, "insert tracking event")
	}

	if tripID != nil {
		_, err = tx.Exec(ctx, `
UPDATE trips
SET current_packages = current_packages + 1
WHERE id = $1
`, *tripID)
		if err != nil {
			return nil, errors.Wrap(err, "increment trip packages")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return m, nil
}

// UpdateMissionStatus валидирует переход по таблице из models, пишет новый
// статус, запись журнала и побочные эффекты доставки — всё одной транзакцией.
// Вторым значением возвращается статус до перехода, он уходит в фид.
func (s *Storage) UpdateMissionStatus(ctx context.Context, missionID uuid.UUID, newStatus string, actorID *uuid.UUID) (*models.Mission, string, error) {
	if !models.IsValidStatus(newStatus) {
		return nil, "", apperr.InvalidInput("unknown status: " + newStatus)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, "", errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	var gpID *uuid.UUID
	err = tx.QueryRow(ctx, `SELECT status, gp_id FROM missions WHERE id = $1 FOR UPDATE`, missionID).Scan(&current, &gpID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", apperr.NotFound("mission")
	}
	if err != nil {
		return nil, "", errors.Wrap(err, "select mission for update")
	}

	if !models.CanUpdateTo(current, newStatus) {
		if newStatus == models.MissionStatusAccepted {
			return nil, "", apperr.InvalidInput("accepted is set through the accept operation")
		}
		return nil, "", apperr.Conflict(fmt.Sprintf("cannot move mission from %s to %s", current, newStatus))
	}

	// delivered требует назначенного GP. Сюда можно попасть из disputed,
	// куда миссия уходит и до принятия.
	if newStatus == models.MissionStatusDelivered && gpID == nil {
		return nil, "", apperr.Conflict("mission cannot be delivered without an assigned gp")
	}

	set := `status = $2, updated_at = now()`
	switch newStatus {
	case models.MissionStatusPickedUp:
		set += `, actual_pickup_date = now()`
	case models.MissionStatusDelivered:
		set += `, completed_at = now(), actual_delivery_date = now()`
	}

	row := tx.QueryRow(ctx, `UPDATE missions SET `+set+` WHERE id = $1 RETURNING`+missionColumns,
		missionID, newStatus)
	m, err := scanMission(row)
	if err != nil {
		return nil, "", errors.Wrap(err, "update mission status")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO mission_tracking (mission_id, status, description, created_by)
VALUES ($1, $2, $3, $4)
`, missionID, newStatus, "Status changed to "+newStatus, actorID)
	if err != nil {
		return nil, "", errors.Wrap(err, "insert tracking event")
	}

	if newStatus == models.MissionStatusDelivered {
		_, err = tx.Exec(ctx, `
UPDATE gp_profiles
SET total_missions_completed = total_missions_completed + 1
WHERE user_id = $1
`, *m.GPID)
		if err != nil {
			return nil, "", errors.Wrap(err, "increment gp completed missions")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", errors.Wrap(err, "commit tx")
	}
	return m, current, nil
}
