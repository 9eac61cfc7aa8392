package pgmissions

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS missions (
  id UUID PRIMARY KEY,
  mission_code TEXT NOT NULL,
  tracking_number TEXT NOT NULL,
  expediteur_id UUID NOT NULL,
  gp_id UUID NULL,
  trip_id UUID NULL,
  departure_country TEXT NOT NULL,
  departure_city TEXT NOT NULL,
  pickup_address TEXT NOT NULL,
  arrival_country TEXT NOT NULL,
  arrival_city TEXT NOT NULL,
  delivery_address TEXT NOT NULL,
  package_weight DOUBLE PRECISION NOT NULL,
  package_length DOUBLE PRECISION NULL,
  package_width DOUBLE PRECISION NULL,
  package_height DOUBLE PRECISION NULL,
  package_description TEXT NULL,
  package_value BIGINT NULL,
  package_photos JSONB NOT NULL DEFAULT '[]',
  desired_departure_date TIMESTAMPTZ NULL,
  desired_arrival_date TIMESTAMPTZ NULL,
  actual_pickup_date TIMESTAMPTZ NULL,
  actual_delivery_date TIMESTAMPTZ NULL,
  offered_price BIGINT NOT NULL,
  final_price BIGINT NULL,
  is_price_negotiable BOOLEAN NOT NULL DEFAULT FALSE,
  is_insured BOOLEAN NOT NULL DEFAULT TRUE,
  insurance_cost BIGINT NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  qr_code_url TEXT NULL,
  qr_code_data TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  completed_at TIMESTAMPTZ NULL,
  UNIQUE (mission_code),
  UNIQUE (tracking_number)
)`,
		`CREATE INDEX IF NOT EXISTS idx_missions_status_created_at ON missions(status, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_missions_expediteur_id ON missions(expediteur_id)`,
		`CREATE INDEX IF NOT EXISTS idx_missions_gp_id ON missions(gp_id)`,
		`
CREATE TABLE IF NOT EXISTS mission_tracking (
  id BIGSERIAL PRIMARY KEY,
  mission_id UUID NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  created_by UUID NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_mission_tracking_mission_id_created_at ON mission_tracking(mission_id, created_at DESC, id DESC)`,
		// Внешние агрегаты: ядро их только инкрементит, строки заводят
		// коллабораторы (регистрация пользователей, публикация поездок).
		`
CREATE TABLE IF NOT EXISTS trips (
  id UUID PRIMARY KEY,
  current_packages INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE TABLE IF NOT EXISTS expediteur_profiles (
  user_id UUID PRIMARY KEY,
  total_shipments INT NOT NULL DEFAULT 0
)`,
		`
CREATE TABLE IF NOT EXISTS gp_profiles (
  user_id UUID PRIMARY KEY,
  total_missions_completed INT NOT NULL DEFAULT 0
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
