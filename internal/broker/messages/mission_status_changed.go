package messages

import (
	"time"

	"github.com/google/uuid"
)

// MissionStatusChanged — событие фида mission.status.changed. Публикуется
// после коммита каждого успешного перехода; его слушают нотификации и
// платёжные коллабораторы, синхронно ядро их не зовёт.
type MissionStatusChanged struct {
	MissionID      uuid.UUID `json:"mission_id"`
	MissionCode    string    `json:"mission_code"`
	TrackingNumber string    `json:"tracking_number"`

	Status     string `json:"status"`
	PrevStatus string `json:"prev_status,omitempty"`

	ExpediteurID uuid.UUID  `json:"expediteur_id"`
	GPID         *uuid.UUID `json:"gp_id,omitempty"`
	ActorID      *uuid.UUID `json:"actor_id,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}
