package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileInfo describes one file selected for upload.
type FileInfo struct {
	Path string
	Name string
	Size int64
}

// ValidateFiles stats every path and reports all problems at once.
// Empty files are allowed; they are announced and complete immediately.
func ValidateFiles(paths []string) ([]FileInfo, error) {
	if len(paths) == 0 {
		return nil, NewError("validate", fmt.Errorf("%w: no files specified", ErrInvalidFile))
	}

	var (
		infos    []FileInfo
		problems []string
	)
	for _, path := range paths {
		info, err := validateFile(path)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		infos = append(infos, info)
	}
	if len(problems) > 0 {
		return nil, WrapError("validate", ErrInvalidFile, strings.Join(problems, "; "))
	}
	return infos, nil
}

func validateFile(path string) (FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: %w", path, err)
	}
	stat, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: %w", path, err)
	}
	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s: is a directory", path)
	}
	return FileInfo{Path: abs, Name: filepath.Base(abs), Size: stat.Size()}, nil
}

func TotalSize(files []FileInfo) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}
