package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы миссии. Порядок фиксированный, назад не ходим.
const (
	MissionStatusPending        = "pending"
	MissionStatusMatched        = "matched"
	MissionStatusAccepted       = "accepted"
	MissionStatusPickedUp       = "picked_up"
	MissionStatusInTransit      = "in_transit"
	MissionStatusInCustoms      = "in_customs"
	MissionStatusOutForDelivery = "out_for_delivery"
	MissionStatusDelivered      = "delivered"
	MissionStatusCancelled      = "cancelled"
	MissionStatusDisputed       = "disputed"
)

// transitions — явная таблица переходов. Пустой набор = терминальный статус.
// accepted достижим только через Accept (там же ставится gp_id), поэтому
// UpdateStatus его в целях не принимает — см. CanUpdateTo.
var transitions = map[string][]string{
	MissionStatusPending:        {MissionStatusMatched, MissionStatusAccepted, MissionStatusCancelled, MissionStatusDisputed},
	MissionStatusMatched:        {MissionStatusAccepted, MissionStatusCancelled, MissionStatusDisputed},
	MissionStatusAccepted:       {MissionStatusPickedUp, MissionStatusCancelled, MissionStatusDisputed},
	MissionStatusPickedUp:       {MissionStatusInTransit, MissionStatusCancelled, MissionStatusDisputed},
	MissionStatusInTransit:      {MissionStatusInCustoms, MissionStatusOutForDelivery, MissionStatusCancelled, MissionStatusDisputed},
	MissionStatusInCustoms:      {MissionStatusOutForDelivery, MissionStatusCancelled, MissionStatusDisputed},
	MissionStatusOutForDelivery: {MissionStatusDelivered, MissionStatusCancelled, MissionStatusDisputed},
	MissionStatusDelivered:      {},
	MissionStatusCancelled:      {},
	// disputed не терминальный: спор разрешается либо доставкой (хранилище
	// дополнительно требует назначенного GP), либо отменой.
	MissionStatusDisputed: {MissionStatusDelivered, MissionStatusCancelled},
}

func IsValidStatus(s string) bool {
	_, ok := transitions[s]
	return ok
}

func IsTerminalStatus(s string) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransition говорит, разрешён ли переход from -> to по таблице.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanUpdateTo — то же, что CanTransition, но для пути UpdateStatus:
// pending/matched/accepted как цели исключены (accepted идёт через Accept).
func CanUpdateTo(from, to string) bool {
	switch to {
	case MissionStatusPending, MissionStatusMatched, MissionStatusAccepted:
		return false
	}
	return CanTransition(from, to)
}

// GPAssigned — статусы, в которых gp_id обязан быть непустым.
func GPAssigned(status string) bool {
	switch status {
	case MissionStatusAccepted, MissionStatusPickedUp, MissionStatusInTransit,
		MissionStatusInCustoms, MissionStatusOutForDelivery, MissionStatusDelivered:
		return true
	}
	return false
}

// Роли — закрытый набор, диспетчеризация по ним делается один раз на границе.
const (
	RoleExpediteur = "expediteur"
	RoleGP         = "gp"
	RoleAdmin      = "admin"
)

type Mission struct {
	ID             uuid.UUID `json:"id"`
	MissionCode    string    `json:"mission_code"`
	TrackingNumber string    `json:"tracking_number"`

	ExpediteurID uuid.UUID  `json:"expediteur_id"`
	GPID         *uuid.UUID `json:"gp_id,omitempty"`
	TripID       *uuid.UUID `json:"trip_id,omitempty"`

	DepartureCountry string `json:"departure_country"`
	DepartureCity    string `json:"departure_city"`
	PickupAddress    string `json:"pickup_address"`
	ArrivalCountry   string `json:"arrival_country"`
	ArrivalCity      string `json:"arrival_city"`
	DeliveryAddress  string `json:"delivery_address"`

	PackageWeight      float64  `json:"package_weight"`
	PackageLength      *float64 `json:"package_length,omitempty"`
	PackageWidth       *float64 `json:"package_width,omitempty"`
	PackageHeight      *float64 `json:"package_height,omitempty"`
	PackageDescription *string  `json:"package_description,omitempty"`
	PackageValue       *int64   `json:"package_value,omitempty"`
	PackagePhotos      []string `json:"package_photos"`

	DesiredDepartureDate *time.Time `json:"desired_departure_date,omitempty"`
	DesiredArrivalDate   *time.Time `json:"desired_arrival_date,omitempty"`
	ActualPickupDate     *time.Time `json:"actual_pickup_date,omitempty"`
	ActualDeliveryDate   *time.Time `json:"actual_delivery_date,omitempty"`

	OfferedPrice      int64  `json:"offered_price"`
	FinalPrice        *int64 `json:"final_price,omitempty"`
	IsPriceNegotiable bool   `json:"is_price_negotiable"`
	IsInsured         bool   `json:"is_insured"`
	InsuranceCost     int64  `json:"insurance_cost"`

	Status string `json:"status"`

	QRCodeURL  *string `json:"qr_code_url,omitempty"`
	QRCodeData *string `json:"qr_code_data,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TrackingEvent — одна запись немутабельного журнала. Пишется только
// хранилищем в той же транзакции, что и смена статуса.
type TrackingEvent struct {
	ID          uint64     `json:"id"`
	MissionID   uuid.UUID  `json:"mission_id"`
	Status      string     `json:"status"`
	Description string     `json:"description"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// MissionCreateInput — то, что присылает экспедитор при создании.
// IsInsured == nil трактуется как true (страховка по умолчанию включена).
type MissionCreateInput struct {
	DepartureCountry string `json:"departure_country"`
	DepartureCity    string `json:"departure_city"`
	PickupAddress    string `json:"pickup_address"`
	ArrivalCountry   string `json:"arrival_country"`
	ArrivalCity      string `json:"arrival_city"`
	DeliveryAddress  string `json:"delivery_address"`

	PackageWeight      float64  `json:"package_weight"`
	PackageLength      *float64 `json:"package_length"`
	PackageWidth       *float64 `json:"package_width"`
	PackageHeight      *float64 `json:"package_height"`
	PackageDescription *string  `json:"package_description"`
	PackageValue       *int64   `json:"package_value"`
	PackagePhotos      []string `json:"package_photos"`

	DesiredDepartureDate *time.Time `json:"desired_departure_date"`
	DesiredArrivalDate   *time.Time `json:"desired_arrival_date"`

	OfferedPrice      int64 `json:"offered_price"`
	IsPriceNegotiable bool  `json:"is_price_negotiable"`
	IsInsured         *bool `json:"is_insured"`
}

// MissionUpdateInput — частичное обновление, допустимо только в pending.
// nil = поле не трогаем.
type MissionUpdateInput struct {
	PickupAddress   *string `json:"pickup_address"`
	DeliveryAddress *string `json:"delivery_address"`

	PackageWeight      *float64 `json:"package_weight"`
	PackageLength      *float64 `json:"package_length"`
	PackageWidth       *float64 `json:"package_width"`
	PackageHeight      *float64 `json:"package_height"`
	PackageDescription *string  `json:"package_description"`
	PackageValue       *int64   `json:"package_value"`
	PackagePhotos      []string `json:"package_photos"`

	DesiredDepartureDate *time.Time `json:"desired_departure_date"`
	DesiredArrivalDate   *time.Time `json:"desired_arrival_date"`

	OfferedPrice      *int64 `json:"offered_price"`
	FinalPrice        *int64 `json:"final_price"`
	IsPriceNegotiable *bool  `json:"is_price_negotiable"`
}

// MissionFilter — конъюнкция фильтров листинга.
type MissionFilter struct {
	Status        string
	ExpediteurID  *uuid.UUID
	GPID          *uuid.UUID
	DepartureCity string
	ArrivalCity   string
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

type MissionPage struct {
	Data       []*Mission `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// TrackingResult — публичный ответ трекинга: миссия + вся история.
type TrackingResult struct {
	Mission *Mission         `json:"mission"`
	Events  []*TrackingEvent `json:"tracking"`
}
