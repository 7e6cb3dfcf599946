package capture

import (
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"go.trai.ch/zerr"
)

// DirTemplates loads templates from image files in a directory. Each Load
// decodes the file again so no template pixels outlive a match call.
type DirTemplates struct {
	Dir string
}

func (d DirTemplates) Load(name string) (image.Image, error) {
	img, err := imaging.Open(filepath.Join(d.Dir, name))
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, ErrTemplateLoad.Error()), "template", name)
	}
	return img, nil
}

// Missing lists the names that have no file in the directory.
func (d DirTemplates) Missing(names []string) []string {
	var out []string
	for _, n := range names {
		if _, err := os.Stat(filepath.Join(d.Dir, n)); err != nil {
			out = append(out, n)
		}
	}
	return out
}

// MemTemplates serves templates from memory. It is used by tests and the
// offline match command.
type MemTemplates struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

func NewMemTemplates() *MemTemplates {
	return &MemTemplates{images: make(map[string]image.Image)}
}

func (m *MemTemplates) Set(name string, img image.Image) {
	m.mu.Lock()
	m.images[name] = img
	m.mu.Unlock()
}

func (m *MemTemplates) Load(name string) (image.Image, error) {
	m.mu.RLock()
	img, ok := m.images[name]
	m.mu.RUnlock()
	if !ok {
		return nil, zerr.With(zerr.Wrap(ErrTemplateLoad, "template not registered"), "template", name)
	}
	return img, nil
}

// LoadFrame decodes an image file into a Frame.
func LoadFrame(path string) (*Frame, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "load frame"), "path", path)
	}
	return NewFrame(img), nil
}
