// Package scheduler реализует планировщик pipeline: продвижение задач
// по графу зависимостей, диспетчеризацию через admission queue, retry
// с персистентным backoff, каскад пропусков и восстановление после
// рестарта.
//
// Планировщик владеет транзакционной границей pipeline: все переходы
// состояний применяются под per-pipeline мьютексом и персистятся
// атомарной заменой документа.
package scheduler
