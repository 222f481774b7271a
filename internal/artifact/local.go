// Package artifact сохраняет загруженные изображения и выдаёт на них непрозрачные ссылки.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrTooLarge возвращается, если файл больше допустимого размера.
var ErrTooLarge = errors.New("file is too large")

// maxExtLen ограничивает длину сохраняемого расширения файла.
const maxExtLen = 8

// LocalStore хранит файлы в локальном каталоге под случайными именами.
type LocalStore struct {
	dir     string
	maxSize int64
}

// NewLocalStore создаёт каталог dir, если его нет.
func NewLocalStore(dir string, maxSize int64) (*LocalStore, error) {
	const op = "artifact.NewLocalStore"
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &LocalStore{dir: dir, maxSize: maxSize}, nil
}

// Save записывает содержимое r в новый файл и возвращает ссылку на него.
// Имя файла клиента используется только для расширения.
func (s *LocalStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	const op = "artifact.Save"
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	path := filepath.Join(s.dir, uuid.NewString()+extension(filename))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && s.maxSize > 0 && n > s.maxSize {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return path, nil
}

// Remove удаляет файл по ссылке. Отсутствие файла ошибкой не считается.
func (s *LocalStore) Remove(ref string) error {
	const op = "artifact.Remove"
	if filepath.Dir(ref) != filepath.Clean(s.dir) {
		return fmt.Errorf("%s: reference %q is outside of store", op, ref)
	}
	if err := os.Remove(ref); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func extension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > maxExtLen {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
