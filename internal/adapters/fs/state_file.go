package fs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const cursorFileName = "cursor.json"

// Cursor is the persisted read position of a durable queue.
type Cursor struct {
	// Head is the index of the next record to hand out.
	Head      uint64    `json:"head"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CursorFile stores a Cursor as JSON in a directory.
type CursorFile struct {
	dir string
}

// NewCursorFile creates a CursorFile for dir.
func NewCursorFile(dir string) *CursorFile {
	return &CursorFile{dir: dir}
}

// Load returns the saved cursor, or a zero Cursor and nil error if none
// has been saved yet.
func (r *CursorFile) Load() (Cursor, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return Cursor{}, nil
		}
		return Cursor{}, err
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, err
	}
	return c, nil
}

// Save writes c atomically (temp file + rename).
func (r *CursorFile) Save(c Cursor) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	c.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	tmp := r.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, r.Path())
}

// Path returns the full path of the cursor file.
func (r *CursorFile) Path() string {
	return filepath.Join(r.dir, cursorFileName)
}
