// Package archive assembles sticker files into a single zip artifact.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/util"
)

type entry struct {
	name string
	data []byte
}

// Archive collects named payloads until Finalize. Names are unique: a colliding name
// gets "_<n>" inserted before its extension.
type Archive struct {
	mu        sync.Mutex
	name      string
	entries   []entry
	names     map[string]struct{}
	createdAt time.Time
	finalized bool
}

func New(name string) *Archive {
	return &Archive{
		name:      name,
		names:     make(map[string]struct{}),
		createdAt: time.Now(),
	}
}

// Add stores data under filename and returns the name actually used.
func (a *Archive) Add(filename string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return "", common.ErrAlreadyFinalized
	}

	name := cleanName(filename)
	if name == "" {
		return "", fmt.Errorf("invalid entry name %q", filename)
	}

	name = a.uniqueName(name)
	a.names[name] = struct{}{}
	a.entries = append(a.entries, entry{name: name, data: data})

	return name, nil
}

// Finalize serializes the entries in insertion order. It can be called only once.
func (a *Archive) Finalize() (*entity.ArchiveArtifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return nil, common.ErrAlreadyFinalized
	}
	a.finalized = true

	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)

	names := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		header := &zip.FileHeader{
			Name:     e.name,
			Method:   zip.Deflate,
			Modified: a.createdAt,
		}

		writer, err := zipWriter.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("cannot create entry %s: %w", e.name, err)
		}

		if _, err := writer.Write(e.data); err != nil {
			return nil, fmt.Errorf("cannot write entry %s: %w", e.name, err)
		}

		names = append(names, e.name)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("cannot finalize archive: %w", err)
	}

	a.entries = nil

	data := buf.Bytes()

	return &entity.ArchiveArtifact{
		Name:      a.name,
		Data:      data,
		Entries:   names,
		Checksum:  util.GetIDFromBytes(data),
		CreatedAt: a.createdAt,
	}, nil
}

func (a *Archive) uniqueName(name string) string {
	if _, exists := a.names[name]; !exists {
		return name
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := base + "_" + strconv.Itoa(n) + ext
		if _, exists := a.names[candidate]; !exists {
			return candidate
		}
	}
}

func cleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Clean("/" + name)
	name = strings.TrimPrefix(name, "/")
	if name == "." {
		return ""
	}

	return name
}

// Extract reads a finalized artifact back into entry name -> payload.
func Extract(data []byte) (map[string][]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("cannot open archive: %w", err)
	}

	files := make(map[string][]byte, len(reader.File))
	for _, f := range reader.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("cannot open entry %s: %w", f.Name, err)
		}

		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("cannot read entry %s: %w", f.Name, err)
		}

		files[f.Name] = content
	}

	return files, nil
}
