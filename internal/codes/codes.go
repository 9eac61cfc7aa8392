package codes

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// Коды читаемые, не структурно-уникальные: коллизию ловит UNIQUE-констрейнт
// в базе, а не генератор.

const trackingPrefix = "SG"

// GenerateCode строит код вида MIS-2026-004217.
func GenerateCode(prefix string) string {
	year := time.Now().UTC().Year()
	return fmt.Sprintf("%s-%d-%06d", prefix, year, rand.IntN(1_000_000))
}

// GenerateTrackingNumber строит публичный номер: SG + base36-таймштамп
// (миллисекунды) + 6 случайных base36 символов, всё в верхнем регистре.
func GenerateTrackingNumber() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	var b strings.Builder
	b.Grow(len(trackingPrefix) + len(ts) + 6)
	b.WriteString(trackingPrefix)
	b.WriteString(strings.ToUpper(ts))
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	for i := 0; i < 6; i++ {
		b.WriteByte(alphabet[rand.IntN(len(alphabet))])
	}
	return b.String()
}

// InsuranceFee — 2% от объявленной ценности, округление до целого франка.
func InsuranceFee(packageValue int64) int64 {
	return (packageValue*2 + 50) / 100
}
