package api

import "errors"

// Ошибки валидации входных документов.
var (
	errNoTiming      = errors.New("either cron_expr or positive interval_sec is required")
	errBadTemplate   = errors.New("template is not a valid pipeline document")
	errEmptyTemplate = errors.New("template must contain at least one task")
)
