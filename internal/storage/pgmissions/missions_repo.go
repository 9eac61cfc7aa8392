package pgmissions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/sengp/missionbox/internal/apperr"
	"github.com/sengp/missionbox/internal/models"
)

const missionColumns = `
  id, mission_code, tracking_number, expediteur_id, gp_id, trip_id,
  departure_country, departure_city, pickup_address,
  arrival_country, arrival_city, delivery_address,
  package_weight, package_length, package_width, package_height,
  package_description, package_value, package_photos,
  desired_departure_date, desired_arrival_date, actual_pickup_date, actual_delivery_date,
  offered_price, final_price, is_price_negotiable, is_insured, insurance_cost,
  status, qr_code_url, qr_code_data, created_at, updated_at, completed_at`

func scanMission(row pgx.Row) (*models.Mission, error) {
	var m models.Mission
	var photos []byte
	if err := row.Scan(
		&m.ID, &m.MissionCode, &m.TrackingNumber, &m.ExpediteurID, &m.GPID, &m.TripID,
		&m.DepartureCountry, &m.DepartureCity, &m.PickupAddress,
		&m.ArrivalCountry, &m.ArrivalCity, &m.DeliveryAddress,
		&m.PackageWeight, &m.PackageLength, &m.PackageWidth, &m.PackageHeight,
		&m.PackageDescription, &m.PackageValue, &photos,
		&m.DesiredDepartureDate, &m.DesiredArrivalDate, &m.ActualPickupDate, &m.ActualDeliveryDate,
		&m.OfferedPrice, &m.FinalPrice, &m.IsPriceNegotiable, &m.IsInsured, &m.InsuranceCost,
		&m.Status, &m.QRCodeURL, &m.QRCodeData, &m.CreatedAt, &m.UpdatedAt, &m.CompletedAt,
	); err != nil {
		return nil, err
	}
	if len(photos) > 0 {
		if err := json.Unmarshal(photos, &m.PackagePhotos); err != nil {
			return nil, errors.Wrap(err, "unmarshal photos")
		}
	}
	return &m, nil
}

type CreateMissionParams struct {
	ID             uuid.UUID
	MissionCode    string
	TrackingNumber string
	ExpediteurID   uuid.UUID

	IsInsured     bool
	InsuranceCost int64

	Input models.MissionCreateInput
}

// CreateMission пишет миссию и инкрементит счётчик отправлений экспедитора
// одной транзакцией: либо оба изменения, либо ни одного.
func (s *Storage) CreateMission(ctx context.Context, p CreateMissionParams) (*models.Mission, error) {
	now := time.Now().UTC()

	photos := p.Input.PackagePhotos
	if photos == nil {
		photos = []string{}
	}
	photosJSON, err := json.Marshal(photos)
	if err != nil {
		return nil, errors.Wrap(err, "marshal photos")
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
INSERT INTO missions (
  id, mission_code, tracking_number, expediteur_id,
  departure_country, departure_city, pickup_address,
  arrival_country, arrival_city, delivery_address,
  package_weight, package_length, package_width, package_height,
  package_description, package_value, package_photos,
  desired_departure_date, desired_arrival_date,
  offered_price, is_price_negotiable, is_insured, insurance_cost,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$24)
RETURNING`+missionColumns,
		p.ID, p.MissionCode, p.TrackingNumber, p.ExpediteurID,
		p.Input.DepartureCountry, p.Input.DepartureCity, p.Input.PickupAddress,
		p.Input.ArrivalCountry, p.Input.ArrivalCity, p.Input.DeliveryAddress,
		p.Input.PackageWeight, p.Input.PackageLength, p.Input.PackageWidth, p.Input.PackageHeight,
		p.Input.PackageDescription, p.Input.PackageValue, string(photosJSON),
		p.Input.DesiredDepartureDate, p.Input.DesiredArrivalDate,
		p.Input.OfferedPrice, p.Input.IsPriceNegotiable, p.IsInsured, p.InsuranceCost,
		now,
	)
	m, err := scanMission(row)
	if err != nil {
		if conflict := asConflict(err, "mission code or tracking number already taken"); conflict != nil {
			return nil, conflict
		}
		return nil, errors.Wrap(err, "insert mission")
	}

	_, err = tx.Exec(ctx, `
UPDATE expediteur_profiles
SET total_shipments = total_shipments + 1
WHERE user_id = $1
`, p.ExpediteurID)
	if err != nil {
		return nil, errors.Wrap(err, "increment expediteur shipments")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return m, nil
}

func (s *Storage) GetMissionByID(ctx context.Context, id uuid.UUID) (*models.Mission, error) {
	row := s.db.QueryRow(ctx, `SELECT`+missionColumns+` FROM missions WHERE id = $1`, id)
	m, err := scanMission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("mission")
	}
	if err != nil {
		return nil, errors.Wrap(err, "select mission")
	}
	return m, nil
}

func (s *Storage) GetMissionByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Mission, error) {
	row := s.db.QueryRow(ctx, `SELECT`+missionColumns+` FROM missions WHERE tracking_number = $1`, trackingNumber)
	m, err := scanMission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("tracking number")
	}
	if err != nil {
		return nil, errors.Wrap(err, "select mission by tracking number")
	}
	return m, nil
}

// UpdateMission — частичное редактирование дескрипторов. Разрешено только
// пока миссия в pending; проверка и апдейт идут под блокировкой строки.
func (s *Storage) UpdateMission(ctx context.Context, id uuid.UUID, in models.MissionUpdateInput) (*models.Mission, error) {
	type field struct {
		name  string
		value any
	}
	var fields []field
	add := func(name string, v any) { fields = append(fields, field{name, v}) }

	if in.PickupAddress != nil {
		add("pickup_address", *in.PickupAddress)
	}
	if in.DeliveryAddress != nil {
		add("delivery_address", *in.DeliveryAddress)
	}
	if in.PackageWeight != nil {
		add("package_weight", *in.PackageWeight)
	}
	if in.PackageLength != nil {
		add("package_length", *in.PackageLength)
	}
	if in.PackageWidth != nil {
		add("package_width", *in.PackageWidth)
	}
	if in.PackageHeight != nil {
		add("package_height", *in.PackageHeight)
	}
	if in.PackageDescription != nil {
		add("package_description", *in.PackageDescription)
	}
	if in.PackageValue != nil {
		add("package_value", *in.PackageValue)
	}
	if in.PackagePhotos != nil {
		b, err := json.Marshal(in.PackagePhotos)
		if err != nil {
			return nil, errors.Wrap(err, "marshal photos")
		}
		add("package_photos", string(b))
	}
	if in.DesiredDepartureDate != nil {
		add("desired_departure_date", *in.DesiredDepartureDate)
	}
	if in.DesiredArrivalDate != nil {
		add("desired_arrival_date", *in.DesiredArrivalDate)
	}
	if in.OfferedPrice != nil {
		add("offered_price", *in.OfferedPrice)
	}
	if in.FinalPrice != nil {
		add("final_price", *in.FinalPrice)
	}
	if in.IsPriceNegotiable != nil {
		add("is_price_negotiable", *in.IsPriceNegotiable)
	}

	if len(fields) == 0 {
		return nil, apperr.InvalidInput("no fields to update")
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM missions WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("mission")
	}
	if err != nil {
		return nil, errors.Wrap(err, "select mission for update")
	}
	if status != models.MissionStatusPending {
		return nil, apperr.Conflict("mission can only be edited while pending")
	}

	set := ""
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		if i > 0 {
			set += ", "
		}
		set += fmt.Sprintf("%s = $%d", f.name, i+1)
		args = append(args, f.value)
	}
	args = append(args, id)

	row := tx.QueryRow(ctx,
		fmt.Sprintf(`UPDATE missions SET %s, updated_at = now() WHERE id = $%d RETURNING`, set, len(args))+missionColumns,
		args...)
	m, err := scanMission(row)
	if err != nil {
		return nil, errors.Wrap(err, "update mission")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return m, nil
}

// SetQRCode перезаписывает QR безусловно: повторная генерация не ошибка.
func (s *Storage) SetQRCode(ctx context.Context, id uuid.UUID, url, data string) error {
	ct, err := s.db.Exec(ctx, `
UPDATE missions SET qr_code_url = $2, qr_code_data = $3, updated_at = now() WHERE id = $1
`, id, url, data)
	if err != nil {
		return errors.Wrap(err, "set qr code")
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("mission")
	}
	return nil
}
