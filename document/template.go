package document

import (
	"archive/zip"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed skeleton/*.xml
var skeleton embed.FS

// defaultParts maps package part names to skeleton files, in zip order.
var defaultParts = []struct{ part, file string }{
	{contentTypesPart, "skeleton/content_types.xml"},
	{packageRelsPart, "skeleton/package_rels.xml"},
	{documentPart, "skeleton/document.xml"},
	{documentRelsPart, "skeleton/document_rels.xml"},
}

// DefaultImages lists the image placeholders of the built-in template.
var DefaultImages = []string{"logo", "cover", "map", "qr"}

// WriteDefaultTemplate writes the built-in itinerary template as a .docx.
func WriteDefaultTemplate(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, p := range defaultParts {
		data, err := skeleton.ReadFile(p.file)
		if err != nil {
			return err
		}
		fw, err := zw.Create(p.part)
		if err != nil {
			return err
		}
		if _, err := fw.Write(data); err != nil {
			return err
		}
	}
	return zw.Close()
}

// EnsureTemplate writes the built-in template to path unless a file is already there.
// It reports whether a template was written.
func EnsureTemplate(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create template directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return false, err
	}
	if err := WriteDefaultTemplate(f); err != nil {
		f.Close()
		os.Remove(path)
		return false, err
	}
	return true, f.Close()
}
