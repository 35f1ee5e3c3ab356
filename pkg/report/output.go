package report

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"gitlab.com/tozd/go/errors"
)

// FileName returns a fresh dump file name, <uuid>.dmp or <uuid>.dmp.zst.
func FileName(compress bool) string {
	name := uuid.NewString() + ".dmp"
	if compress {
		name += ".zst"
	}
	return name
}

// OutputPath resolves out to a file path. An empty out or an existing
// directory gets a generated file name inside it.
func OutputPath(out string, compress bool) string {
	if out == "" {
		return FileName(compress)
	}
	if fi, err := os.Stat(out); err == nil && fi.IsDir() {
		return filepath.Join(out, FileName(compress))
	}
	return out
}

type sink struct {
	f   *os.File
	enc *zstd.Encoder
}

func (s *sink) Write(p []byte) (int, error) {
	if s.enc != nil {
		return s.enc.Write(p)
	}
	return s.f.Write(p)
}

func (s *sink) Close() error {
	var encErr error
	if s.enc != nil {
		encErr = s.enc.Close()
	}
	return errors.Join(encErr, s.f.Close())
}

// Create opens path for writing a document, zstd compressing it when
// compress is set.
func Create(path string, compress bool) (io.WriteCloser, errors.E) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	s := &sink{f: f}
	if compress {
		if s.enc, err = zstd.NewWriter(f); err != nil {
			f.Close()
			return nil, errors.WithStack(err)
		}
	}
	return s, nil
}
