package executor

import (
	"context"
	"encoding/json"

	"github.com/shaiso/Reelforge/internal/domain"
)

// Executor — контракт выполнения задач одного типа на backend'е.
//
// Submit ставит задачу в очередь backend'а и возвращает handle;
// PollStatus по handle отвечает на вопрос "что с job'ом сейчас".
// Executor не ретраит и не ждёт завершения — это зона ответственности
// Execution Tracker'а.
type Executor interface {
	// Submit ставит задачу на выполнение. Ошибка означает, что backend
	// задачу не принял; фатальные ошибки (невалидный payload) помечаются
	// через Fatal.
	Submit(ctx context.Context, task *domain.Task) (JobHandle, error)

	// PollStatus возвращает текущий статус job'а. Ошибка означает, что
	// статус выяснить не удалось (сетевой сбой, молчание API) — это не
	// вердикт о самом job'е.
	PollStatus(ctx context.Context, handle JobHandle) (Status, error)
}

// JobHandle — ссылка на запущенный job и его ожидаемые артефакты.
// Поля артефактов заполняются executor'ом из payload задачи и служат
// fallback-стратегиям обнаружения завершения.
type JobHandle struct {
	// ID — opaque идентификатор job'а на backend'е.
	ID string

	// OutputDir — каталог, куда workflow пишет артефакты и done-маркер.
	// Пусто, если fallback-обнаружение для задачи не применимо.
	OutputDir string

	// OutputPrefix — префикс имён выходных файлов.
	OutputPrefix string

	// MinArtifacts — минимум артефактов, при котором job считается
	// завершённым стратегией artifact_scan. 0 — artifact_scan отключён.
	MinArtifacts int
}

// StatusKind — вид статуса job'а.
type StatusKind int

const (
	// StatusPending — job ещё выполняется (или его судьба неизвестна).
	StatusPending StatusKind = iota

	// StatusSuccess — job завершился успешно.
	StatusSuccess

	// StatusFailed — backend явно сообщил об ошибке job'а.
	StatusFailed
)

// Status — результат одного опроса job'а.
type Status struct {
	Kind StatusKind

	// Output — результат задачи; заполняется только при StatusSuccess.
	Output json.RawMessage

	// Reason — описание ошибки при StatusFailed.
	Reason string

	// Fatal — ошибка не ретраится (повтор даст тот же результат).
	Fatal bool
}

// Pending возвращает статус "ещё выполняется".
func Pending() Status {
	return Status{Kind: StatusPending}
}

// Success возвращает успешный статус с результатом.
func Success(output json.RawMessage) Status {
	return Status{Kind: StatusSuccess, Output: output}
}

// Failed возвращает статус явной ошибки backend'а.
func Failed(reason string, fatal bool) Status {
	return Status{Kind: StatusFailed, Reason: reason, Fatal: fatal}
}
