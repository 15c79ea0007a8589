package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// PinrelayFS is an Afero FS with added functionality
// to replicate OS filesystems in testing
type PinrelayFS interface {
	afero.Fs
	Abs(string) (string, error)
	HomeDir() (string, error)
}

type pinrelayOSFS struct {
	afero.Fs
}

func NewPinrelayOSFS() PinrelayFS {
	return &pinrelayOSFS{
		afero.NewOsFs(),
	}
}

func (g *pinrelayOSFS) Abs(path string) (string, error) {
	return filepath.Abs(path)
}

func (g *pinrelayOSFS) HomeDir() (string, error) {
	return os.UserHomeDir()
}

type pinrelayMemFS struct {
	afero.Fs
}

func NewPinrelayMemFS() PinrelayFS {
	return &pinrelayMemFS{
		afero.NewMemMapFs(),
	}
}

func (g *pinrelayMemFS) Abs(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Join("/", path), nil
}

func (g *pinrelayMemFS) HomeDir() (string, error) {
	return "/home", nil
}
