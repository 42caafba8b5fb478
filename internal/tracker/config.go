package tracker

import (
	"fmt"
	"time"
)

// Параметры по умолчанию.
const (
	// DefaultPollInterval — период опроса backend'а. Backend медленный,
	// частый опрос ничего не ускоряет и только нагружает его API.
	DefaultPollInterval = 2 * time.Second

	// DefaultAttemptDeadline — потолок одной попытки. Generation-задачи
	// на перегруженном GPU легко идут минутами.
	DefaultAttemptDeadline = 5 * time.Minute

	// DefaultGraceWindow — окно финальной проверки после дедлайна:
	// fallback-стратегии успевают увидеть артефакты, которые workflow
	// дописал в последний момент.
	DefaultGraceWindow = 5 * time.Second
)

// Config — параметры Execution Tracker'а.
//
// Нулевое значение длительности означает "взять default"; отрицательные
// значения отклоняются при создании трекера.
type Config struct {
	// PollInterval — период цикла опроса.
	PollInterval time.Duration

	// MaxPollAttempts — максимум циклов опроса на попытку.
	// 0 — не ограничено (работает только AttemptDeadline).
	MaxPollAttempts int

	// AttemptDeadline — максимальная длительность одной попытки.
	AttemptDeadline time.Duration

	// GraceWindow — выдержка обнаруженного успеха перед его объявлением
	// и пауза перед финальным проходом стратегий после дедлайна.
	GraceWindow time.Duration
}

// Validate проверяет конфигурацию и подставляет значения по умолчанию
// вместо нулевых полей.
func (c *Config) Validate() error {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.AttemptDeadline == 0 {
		c.AttemptDeadline = DefaultAttemptDeadline
	}
	if c.GraceWindow == 0 {
		c.GraceWindow = DefaultGraceWindow
	}

	if c.PollInterval < 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfiguration)
	}
	if c.AttemptDeadline < 0 {
		return fmt.Errorf("%w: attempt deadline must be positive", ErrInvalidConfiguration)
	}
	if c.MaxPollAttempts < 0 {
		return fmt.Errorf("%w: max poll attempts must not be negative", ErrInvalidConfiguration)
	}
	if c.GraceWindow < 0 {
		return fmt.Errorf("%w: grace window must not be negative", ErrInvalidConfiguration)
	}
	return nil
}
