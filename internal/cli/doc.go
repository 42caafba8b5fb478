// Package cli реализует инструмент командной строки Reelforge.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Reelforge API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для сабмита pipeline, контроля выполнения и
// управления расписаниями.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Reelforge API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	pipelines, err := client.ListPipelines("", 0)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: reelforge pipeline list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - pipeline: list, submit, show, cancel, pause, resume, tasks, attempts
//   - schedule: list, create, show, delete, enable, disable
//
// Каждая группа создаётся через фабричную функцию (NewPipelineCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
