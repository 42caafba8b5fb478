// Package api содержит HTTP API сервер оркестратора.
//
// Структура:
//   - handler.go          — Handler с DI (store, планировщик, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - pipeline_handler.go — обработчики для /pipelines
//   - schedule_handler.go — обработчики для /schedules
//
// API предоставляет REST endpoints для сабмита и управления pipeline,
// просмотра задач и журнала попыток, CRUD расписаний.
package api
