package scheduler

import "time"

// Режимы backoff.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Значения по умолчанию. Backend медленный: ретраить раньше, чем через
// десяток секунд, бессмысленно.
const (
	defaultInitialDelay = 10 * time.Second
	defaultMaxDelay     = 5 * time.Minute
)

// Backoff — политика задержки перед повторной попыткой.
type Backoff struct {
	// Mode — "fixed" или "exponential". Неизвестный режим считается fixed.
	Mode string

	// InitialDelay — базовая задержка.
	InitialDelay time.Duration

	// MaxDelay — потолок задержки (для exponential).
	MaxDelay time.Duration
}

// Delay вычисляет задержку перед попыткой attempt (начиная с 1).
func (b Backoff) Delay(attempt int) time.Duration {
	initial := b.InitialDelay
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	max := b.MaxDelay
	if max <= 0 {
		max = defaultMaxDelay
	}

	var delay time.Duration
	switch b.Mode {
	case BackoffExponential:
		// delay = initial * 2^(attempt-1)
		delay = initial
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > max {
				delay = max
				break
			}
		}
	default:
		// "fixed" или неизвестный — базовая задержка
		delay = initial
	}

	if delay > max {
		delay = max
	}
	return delay
}
