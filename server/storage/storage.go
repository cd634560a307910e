package storage

import (
	"errors"
	"io"
	"time"
)

var (
	ErrNoPublicUrl    = errors.New("Storage system has no public URLs")
	ErrNotAFilesystem = errors.New("Storage system is not a filesystem")
)

// Storage is an abstraction of a blob store (eg GCS), used for evidence images
type Storage interface {
	// When finished, you must close the WriteCloser
	WriteFile(name string) (io.WriteCloser, error)

	// When finished, you must close File.Reader
	ReadFile(name string) (*File, error)

	DeleteFile(name string) error

	// URL returns a publicly reachable URL for the file, or ErrNoPublicUrl
	URL(name string) (string, error)

	// Filename returns the file's path on the local filesystem, or
	// ErrNotAFilesystem for stores without one
	Filename(name string) (string, error)
}

// File is an element in blob storage.
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64
}

func WriteFile(s Storage, name string, content io.Reader) error {
	f, err := s.WriteFile(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, content)
	errClose := f.Close()
	if err != nil {
		return err
	}
	return errClose
}

func ReadFile(s Storage, name string) ([]byte, error) {
	f, err := s.ReadFile(name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	return io.ReadAll(f.Reader)
}
