// Package common — errors.go определяет пользовательские ошибки,
// которые используются по всему проекту.
// Все ошибки сравниваются через errors.Is, обёртки делаются через %w.
package common

import "errors"

// Ошибки входных данных
var (
	// ErrInvalidCoordinate — широта/долгота вне допустимого диапазона
	ErrInvalidCoordinate = errors.New("координаты вне допустимого диапазона")
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrInvalidReport — отчёт не прошёл проверку полей
	ErrInvalidReport = errors.New("некорректный отчёт")
	// ErrInvalidForm — данные анкеты не соответствуют схеме категории
	ErrInvalidForm = errors.New("данные анкеты не прошли проверку")
	// ErrRateLimited — автор отправляет отчёты слишком часто
	ErrRateLimited = errors.New("слишком много отчётов, попробуйте позже")
)

// Ошибки леджера (баллы, репутация, награды)
var (
	// ErrInsufficientBalance — недостаточно баллов на счету
	ErrInsufficientBalance = errors.New("недостаточно баллов на счету")
	// ErrRewardUnavailable — награда отключена или закончилась
	ErrRewardUnavailable = errors.New("награда недоступна")
	// ErrAccountBanned — аккаунт заблокирован (временно или навсегда)
	ErrAccountBanned = errors.New("аккаунт заблокирован")
	// ErrAccountNotFound — аккаунт не найден
	ErrAccountNotFound = errors.New("аккаунт не найден")
)

// Ошибки модерации
var (
	// ErrReportNotFound — отчёт не найден
	ErrReportNotFound = errors.New("отчёт не найден")
	// ErrInvalidTransition — переход статуса запрещён state-машиной
	ErrInvalidTransition = errors.New("недопустимый переход статуса")
)

// Ошибки POI и поиска
var (
	// ErrPOINotFound — точка интереса не найдена
	ErrPOINotFound = errors.New("точка интереса не найдена")
	// ErrInvalidArea — не задан ни центр с радиусом, ни прямоугольник
	ErrInvalidArea = errors.New("некорректная область поиска")
	// ErrSearchBackendUnavailable — геопоиск выключен или упал, используется точный обход
	ErrSearchBackendUnavailable = errors.New("геопоиск недоступен")
	// ErrNotRanked — аккаунта нет в рейтинге (заблокирован или отсутствует)
	ErrNotRanked = errors.New("аккаунт не участвует в рейтинге")
)

// Ошибки внешнего оракула оценки.
// Наружу не отдаются: вызывающий код подставляет значения по умолчанию.
var (
	// ErrOracleTimeout — оракул не ответил за отведённое время
	ErrOracleTimeout = errors.New("оракул не ответил вовремя")
	// ErrOracleError — оракул вернул ошибку или мусор
	ErrOracleError = errors.New("ошибка оракула")
)

// Ошибки геокодера. Подпись адреса необязательна, поэтому наружу тоже не отдаются.
var (
	// ErrAddressNotFound — геокодер ничего не нашёл
	ErrAddressNotFound = errors.New("адрес не найден")
	// ErrGeocoderUnavailable — геокодер не настроен или не отвечает
	ErrGeocoderUnavailable = errors.New("геокодер недоступен")
)
