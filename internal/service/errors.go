package service

import (
	"errors"
	"fmt"

	"github.com/SergeiKhy/rentcard-share/internal/models"
)

// Ошибки сервиса
var (
	ErrNotFound         = errors.New("не найдено")
	ErrExpired          = errors.New("срок действия истёк")
	ErrRevoked          = errors.New("доступ отозван")
	ErrInactive         = errors.New("ссылка деактивирована")
	ErrForbidden        = errors.New("нет прав на операцию")
	ErrValidation       = errors.New("некорректные данные")
	ErrRecordingFailure = errors.New("не удалось записать событие аналитики")
)

// Частные случаи ErrValidation
var (
	ErrInvalidURL         = fmt.Errorf("%w: невалидный URL", ErrValidation)
	ErrInvalidScope       = fmt.Errorf("%w: неизвестная область токена", ErrValidation)
	ErrInvalidChannel     = fmt.Errorf("%w: неизвестный канал", ErrValidation)
	ErrInvalidResource    = fmt.Errorf("%w: неизвестный тип ресурса", ErrValidation)
	ErrInvalidSource      = fmt.Errorf("%w: неизвестный источник просмотра", ErrValidation)
	ErrInvalidGranularity = fmt.Errorf("%w: неизвестная гранулярность", ErrValidation)
	ErrInvalidEntity      = fmt.Errorf("%w: неизвестный тип сущности", ErrValidation)
	ErrInvalidStatus      = fmt.Errorf("%w: неизвестный статус интереса", ErrValidation)
	ErrExpiresInPast      = fmt.Errorf("%w: дата истечения в прошлом", ErrValidation)
)

// tokenStatusError переводит статус токена в ошибку сервиса; для валидного nil
func tokenStatusError(status models.TokenStatus) error {
	switch status {
	case models.TokenRevoked:
		return ErrRevoked
	case models.TokenExpired:
		return ErrExpired
	case models.TokenNotFound:
		return ErrNotFound
	}
	return nil
}
