package executor

import "errors"

// Ошибки executor-слоя.
var (
	// ErrUnknownTaskType — для типа задачи не зарегистрирован executor.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrInvalidPayload — payload задачи не соответствует формату executor'а.
	// Всегда фатальна: повтор с тем же payload даст тот же результат.
	ErrInvalidPayload = errors.New("invalid task payload")
)

// fatalError помечает ошибку как неретраябельную.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }

// Fatal оборачивает ошибку меткой "не ретраить".
// Идемпотентна: повторное оборачивание не меняет семантику.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal возвращает true, если ошибка помечена как фатальная.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
