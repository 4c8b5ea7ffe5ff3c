package batch

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// JSONLWriter appends one JSON record per line. A mutex serializes writers in
// this process and a file lock serializes concurrent runs on the same output.
type JSONLWriter struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewJSONLWriter prepares a writer for path, creating parent directories.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &JSONLWriter{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Path returns the output file path.
func (w *JSONLWriter) Path() string {
	return w.path
}

// Append marshals the record and appends it as one line.
func (w *JSONLWriter) Append(record any) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.lock.Lock(); err != nil {
		return err
	}
	defer w.lock.Unlock()

	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return err
	}
	return file.Sync()
}

// LoadPriorIDs collects query_id values from earlier output files so
// incremental runs can skip them.
func LoadPriorIDs(paths []string) (map[string]bool, error) {
	ids := make(map[string]bool)
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var record struct {
				QueryID string `json:"query_id"`
			}
			if err := json.Unmarshal(line, &record); err != nil {
				continue
			}
			if record.QueryID != "" {
				ids[record.QueryID] = true
			}
		}
		err = scanner.Err()
		file.Close()
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}
