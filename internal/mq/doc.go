// Package mq — интеграция с RabbitMQ.
//
// Оркестратор публикует события жизненного цикла pipeline (приём,
// терминальные переходы задач, финализация) и принимает внешние
// сабмиты pipeline-документов через очередь ingest.
//
// Доставка событий best-effort: транзакционная граница pipeline —
// документ в хранилище, брокер лишь уведомляет подписчиков.
package mq
