package transfer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Sink stores completed files in one directory and never overwrites.
type Sink struct {
	Dir string
}

func NewSink(dir string) *Sink { return &Sink{Dir: dir} }

func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "download"
	}
	return name
}

// Save writes f and returns the path it landed at.
func (s *Sink) Save(f File) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", NewFileError("save", f.Name, err)
	}
	name := sanitize(f.Name)
	path := filepath.Join(s.Dir, name)
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		ext := filepath.Ext(name)
		alt := fmt.Sprintf("%s-%s%s", strings.TrimSuffix(name, ext), uuid.NewString()[:8], ext)
		path = filepath.Join(s.Dir, alt)
		fh, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		return "", NewFileError("save", f.Name, err)
	}
	if _, err := fh.Write(f.Data); err != nil {
		fh.Close()
		return "", NewFileError("save", f.Name, err)
	}
	if err := fh.Close(); err != nil {
		return "", NewFileError("save", f.Name, err)
	}
	return path, nil
}
