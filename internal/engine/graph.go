package engine

import (
	"github.com/shaiso/Reelforge/internal/domain"
)

// Graph — провалидированный граф зависимостей задач pipeline.
//
// Граф неизменяем после Build. Состояния задач в нём не хранятся:
// методы обхода принимают функцию-снимок состояний, чтобы планировщик
// мог вычислять ready set по консистентному срезу из Store.
type Graph struct {
	// order — ID задач в порядке объявления.
	order []string

	// deps — ID задачи → её зависимости.
	deps map[string][]string

	// dependents — ID задачи → задачи, зависящие от неё.
	dependents map[string][]string

	// topo — топологически отсортированные ID (алгоритм Кана).
	topo []string
}

// StateFn — снимок состояний: ID задачи → текущее состояние.
type StateFn func(taskID string) domain.TaskState

// Build строит и валидирует граф из задач pipeline.
//
// Проверки:
//   - граф не пуст, ID непустые и уникальные
//   - нет зависимостей от себя
//   - каждая зависимость объявлена (иначе ErrUnknownDependency)
//   - нет циклов (иначе CycleError с конкретным путём)
func Build(tasks []*domain.Task) (*Graph, error) {
	if len(tasks) == 0 {
		return nil, ErrEmptyGraph
	}

	g := &Graph{
		deps:       make(map[string][]string, len(tasks)),
		dependents: make(map[string][]string, len(tasks)),
	}

	// Первый проход: регистрируем узлы.
	for _, t := range tasks {
		if t.ID == "" {
			return nil, ErrEmptyTaskID
		}
		if _, exists := g.deps[t.ID]; exists {
			return nil, &DependencyError{TaskID: t.ID, DepID: t.ID, Err: ErrDuplicateTaskID}
		}
		g.order = append(g.order, t.ID)
		g.deps[t.ID] = t.DependsOn
	}

	// Второй проход: проверяем рёбра и строим обратные ссылки.
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return nil, &DependencyError{TaskID: t.ID, DepID: dep, Err: ErrSelfDependency}
			}
			if _, exists := g.deps[dep]; !exists {
				return nil, &DependencyError{TaskID: t.ID, DepID: dep, Err: ErrUnknownDependency}
			}
			g.dependents[dep] = append(g.dependents[dep], t.ID)
		}
	}

	topo, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}
	g.topo = topo

	return g, nil
}

// topologicalSort выполняет сортировку Кана.
// Обход очереди — в порядке объявления, чтобы результат был детерминирован.
func (g *Graph) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.order))
	for id, deps := range g.deps {
		inDegree[id] = len(deps)
	}

	var queue []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	topo := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		topo = append(topo, id)

		for _, dep := range g.dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	// Не все узлы обработаны — есть цикл. Находим конкретный путь.
	if len(topo) != len(g.order) {
		return nil, &CycleError{Path: g.findCycle(inDegree)}
	}

	return topo, nil
}

// findCycle возвращает один цикл среди узлов с ненулевым остаточным
// inDegree. Идём по первой зависимости внутри остатка, пока не замкнёмся.
func (g *Graph) findCycle(inDegree map[string]int) []string {
	inCycle := func(id string) bool { return inDegree[id] > 0 }

	var start string
	for _, id := range g.order {
		if inCycle(id) {
			start = id
			break
		}
	}

	seen := make(map[string]int)
	var path []string
	cur := start
	for {
		if idx, ok := seen[cur]; ok {
			return path[idx:]
		}
		seen[cur] = len(path)
		path = append(path, cur)

		for _, dep := range g.deps[cur] {
			if inCycle(dep) {
				cur = dep
				break
			}
		}
	}
}

// ReadySet возвращает задачи, готовые к переводу в READY:
// PENDING, все зависимости SUCCEEDED.
//
// Порядок результата — порядок объявления (first-declared-first-dispatched),
// никакого другого приоритета нет: так поведение детерминировано и тестируемо.
func (g *Graph) ReadySet(state StateFn) []string {
	var ready []string

	for _, id := range g.order {
		if state(id) != domain.TaskStatePending {
			continue
		}

		allDone := true
		for _, dep := range g.deps[id] {
			if state(dep) != domain.TaskStateSucceeded {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, id)
		}
	}

	return ready
}

// CascadeTargets возвращает транзитивных зависимых задачи from
// в топологическом порядке. Используется для каскада SKIPPED от
// терминально упавшей или пропущенной задачи.
func (g *Graph) CascadeTargets(from string) []string {
	reach := map[string]bool{from: true}
	var targets []string

	for _, id := range g.topo {
		if reach[id] {
			continue
		}
		for _, dep := range g.deps[id] {
			if reach[dep] {
				reach[id] = true
				targets = append(targets, id)
				break
			}
		}
	}

	return targets
}

// Deps возвращает зависимости задачи.
func (g *Graph) Deps(id string) []string {
	return g.deps[id]
}

// Order возвращает ID задач в порядке объявления.
func (g *Graph) Order() []string {
	return g.order
}

// Size возвращает количество задач в графе.
func (g *Graph) Size() int {
	return len(g.order)
}
