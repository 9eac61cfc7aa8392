package pgmissions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sengp/missionbox/internal/models"
)

// ListMissions — конъюнкция фильтров + пагинация. page/limit приходят уже
// нормализованными из сервиса; count и data строятся из одного WHERE.
func (s *Storage) ListMissions(ctx context.Context, f models.MissionFilter, page, limit int) (*models.MissionPage, error) {
	where := "WHERE 1=1"
	args := []any{}
	n := 1

	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, f.Status)
		n++
	}
	if f.ExpediteurID != nil {
		where += fmt.Sprintf(" AND expediteur_id = $%d", n)
		args = append(args, *f.ExpediteurID)
		n++
	}
	if f.GPID != nil {
		where += fmt.Sprintf(" AND gp_id = $%d", n)
		args = append(args, *f.GPID)
		n++
	}
	if f.DepartureCity != "" {
		where += fmt.Sprintf(" AND departure_city ILIKE $%d", n)
		args = append(args, "%"+f.DepartureCity+"%")
		n++
	}
	if f.ArrivalCity != "" {
		where += fmt.Sprintf(" AND arrival_city ILIKE $%d", n)
		args = append(args, "%"+f.ArrivalCity+"%")
		n++
	}

	var total int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM missions "+where, args...).Scan(&total); err != nil {
		return nil, errors.Wrap(err, "count missions")
	}

	offset := (page - 1) * limit
	dataArgs := append(args, limit, offset)
	rows, err := s.db.Query(ctx,
		fmt.Sprintf("SELECT%s FROM missions %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
			missionColumns, where, n, n+1),
		dataArgs...)
	if err != nil {
		return nil, errors.Wrap(err, "select missions")
	}
	defer rows.Close()

	data := []*models.Mission{}
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan mission")
		}
		data = append(data, m)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	totalPages := (total + int64(limit) - 1) / int64(limit)
	return &models.MissionPage{
		Data: data,
		Pagination: models.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

// ListTrackingEvents возвращает весь журнал миссии, свежие записи первыми.
// id в сортировке разруливает события с одинаковым created_at.
func (s *Storage) ListTrackingEvents(ctx context.Context, missionID uuid.UUID) ([]*models.TrackingEvent, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, mission_id, status, description, created_by, created_at
FROM mission_tracking
WHERE mission_id = $1
ORDER BY created_at DESC, id DESC
`, missionID)
	if err != nil {
		return nil, errors.Wrap(err, "select tracking events")
	}
	defer rows.Close()

	out := []*models.TrackingEvent{}
	for rows.Next() {
		var e models.TrackingEvent
		if err := rows.Scan(&e.ID, &e.MissionID, &e.Status, &e.Description, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan tracking event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
