// Package journal records durable operational events of a chunk store: map growth,
// import failures, backups and their off-site mirroring. Events are JSON lines in hourly zstd files.
package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const (
	KindResize       = "resize"
	KindImportFailed = "import_failed"
	KindImportDone   = "import_done"
	KindBackup       = "backup"
	KindMirror       = "mirror"
)

type Event struct {
	Time  string `json:"time"`
	RunID string `json:"run_id"`
	Kind  string `json:"kind"`

	OldSize int64 `json:"old_size,omitempty"`
	NewSize int64 `json:"new_size,omitempty"`

	Dimension string `json:"dimension,omitempty"`
	X         *int32 `json:"x,omitempty"`
	Z         *int32 `json:"z,omitempty"`
	Error     string `json:"error,omitempty"`

	Imported int `json:"imported,omitempty"`
	Failed   int `json:"failed,omitempty"`
	Skipped  int `json:"skipped,omitempty"`

	Path    string `json:"path,omitempty"`
	Objects int    `json:"objects,omitempty"`
}

// Journal stamps every event with the process run id. A nil *Journal discards events.
type Journal struct {
	w     *JSONLZstdWriter
	runID string
}

func Open(dir string) *Journal {
	return &Journal{
		w:     NewJSONLZstdWriter(dir, "journal"),
		runID: uuid.NewString(),
	}
}

func (j *Journal) RunID() string {
	if j == nil {
		return ""
	}
	return j.runID
}

func (j *Journal) Record(e Event) error {
	if j == nil {
		return nil
	}
	e.RunID = j.runID
	if e.Time == "" {
		e.Time = j.w.now().UTC().Format(time.RFC3339Nano)
	}
	return j.w.Write(e)
}

func (j *Journal) Resize(oldSize, newSize int64) error {
	return j.Record(Event{Kind: KindResize, OldSize: oldSize, NewSize: newSize})
}

func (j *Journal) ImportFailed(x, z int32, dimension string, err error) error {
	return j.Record(Event{Kind: KindImportFailed, Dimension: dimension, X: &x, Z: &z, Error: err.Error()})
}

func (j *Journal) ImportDone(dimension string, imported, failed, skipped int) error {
	return j.Record(Event{Kind: KindImportDone, Dimension: dimension, Imported: imported, Failed: failed, Skipped: skipped})
}

func (j *Journal) Backup(path string) error {
	return j.Record(Event{Kind: KindBackup, Path: path})
}

// Mirror records an upload of the backup at path; err is nil on success.
func (j *Journal) Mirror(path string, objects int, err error) error {
	e := Event{Kind: KindMirror, Path: path, Objects: objects}
	if err != nil {
		e.Error = err.Error()
	}
	return j.Record(e)
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.w.Close()
}

// ReadAll decodes every event in the journal files under dir, oldest file first.
func ReadAll(dir string) ([]Event, error) {
	files, err := filepath.Glob(filepath.Join(dir, "journal-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, path := range files {
		evs, err := readFile(path)
		if err != nil {
			return out, err
		}
		out = append(out, evs...)
	}
	return out, nil
}

func readFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Event
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
