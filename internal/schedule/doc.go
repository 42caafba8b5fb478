// Package schedule реализует запуск pipeline по расписанию.
//
// Runner периодически проверяет расписания с истекшим next_due_at и
// материализует их шаблоны в новые pipeline через планировщик.
//
// Структура:
//   - runner.go — основная логика Runner (Tick, processSchedule)
//   - cron.go   — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	runner := schedule.New(schedule.Config{
//	    Schedules: store,
//	    Submitter: sched,
//	    Logger:    logger,
//	})
//
//	go runner.Run(ctx) // тик раз в секунду
//
// Дубликаты при повторном тике или рестарте гасятся ключом
// идемпотентности "{schedule_id}_{next_due_unix}" на стороне
// планировщика.
package schedule
