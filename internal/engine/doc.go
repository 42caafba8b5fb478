// Package engine содержит граф зависимостей задач pipeline.
//
// Включает:
//   - graph.go  — построение и валидация DAG, ready set, каскад пропусков
//   - errors.go — структурные ошибки графа (цикл, неизвестная зависимость)
//
// Engine отвечает за структуру pipeline и порядок выполнения задач;
// состояния задач он не хранит — их снимок передаёт планировщик.
package engine
