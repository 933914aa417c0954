// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: работа с временем, числовые хелперы, форматирование.
package common

import (
	"math"
	"time"
)

// MoscowLocation возвращает часовой пояс Europe/Moscow (для cron и дат в описаниях).
// Если tzdata нет в контейнере — используем UTC+3 вручную.
func MoscowLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" (день.месяц.год часы:минуты).
// Используется в описаниях транзакций (срок бана).
func FormatDateTime(t time.Time) string {
	return t.In(MoscowLocation()).Format("02.01.2006 15:04")
}

// Clamp ограничивает v диапазоном [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// RoundInt округляет до ближайшего целого (половины — от нуля).
func RoundInt(v float64) int64 {
	return int64(math.Round(v))
}
