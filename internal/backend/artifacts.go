package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMarkerNotFound — done-маркер ещё не записан.
var ErrMarkerNotFound = errors.New("done marker not found")

// DoneMarker — out-of-band сигнал завершения, который workflow пишет сам
// (атомарно, через tmp→rename). Это sentinel для случаев, когда статусный
// API backend'а молчит о реально завершённой работе.
type DoneMarker struct {
	// Timestamp — ISO8601 UTC время записи маркера.
	Timestamp string `json:"Timestamp"`

	// FrameCount — количество сгенерированных кадров (опционально).
	FrameCount int `json:"FrameCount,omitempty"`
}

// ReadDoneMarker читает маркер "<prefix>.done" из каталога dir.
// Возвращает ErrMarkerNotFound, если маркера нет. Файл "<prefix>.done.tmp"
// игнорируется: producer мог не завершить атомарную запись.
func ReadDoneMarker(dir, prefix string) (*DoneMarker, error) {
	path := filepath.Join(dir, prefix+".done")

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMarkerNotFound
		}
		return nil, fmt.Errorf("read done marker: %w", err)
	}

	var marker DoneMarker
	if err := json.Unmarshal(raw, &marker); err != nil {
		// Повреждённый маркер считаем отсутствующим: producer мог упасть
		// посреди fallback-записи.
		return nil, ErrMarkerNotFound
	}

	return &marker, nil
}

// CountArtifacts возвращает количество выходных файлов с данным префиксом
// в каталоге dir. Служебные файлы маркера не считаются.
func CountArtifacts(dir, prefix string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*"))
	if err != nil {
		return 0, fmt.Errorf("glob artifacts: %w", err)
	}

	count := 0
	for _, m := range matches {
		name := filepath.Base(m)
		if strings.HasSuffix(name, ".done") || strings.HasSuffix(name, ".done.tmp") {
			continue
		}
		count++
	}
	return count, nil
}

// WriteDoneMarker пишет маркер атомарно (tmp→rename).
// Используется тестовыми executor'ами и инструментами; боевой маркер
// пишет сам workflow на стороне backend'а.
func WriteDoneMarker(dir, prefix string, marker DoneMarker) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	raw, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}

	tmp := filepath.Join(dir, prefix+".done.tmp")
	final := filepath.Join(dir, prefix+".done")

	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write tmp marker: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename marker: %w", err)
	}
	return nil
}
