package qr

import (
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"
)

// Payload — то, что зашивается в QR миссии.
type Payload struct {
	MissionCode    string    `json:"mission_code"`
	TrackingNumber string    `json:"tracking_number"`
	ID             uuid.UUID `json:"id"`
}

const pngSize = 256

// Encode рендерит payload в data-URL с PNG. Возвращает (url, data):
// data — исходный JSON, он же хранится рядом с URL для сканеров без камер.
func Encode(p Payload) (string, string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", "", errors.Wrap(err, "marshal qr payload")
	}
	png, err := qrcode.Encode(string(data), qrcode.Medium, pngSize)
	if err != nil {
		return "", "", errors.Wrap(err, "encode qr png")
	}
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	return url, string(data), nil
}
