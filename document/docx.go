package document

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	contentTypesPart = "[Content_Types].xml"
	packageRelsPart  = "_rels/.rels"
	documentPart     = "word/document.xml"
	documentRelsPart = "word/_rels/document.xml.rels"

	relsNamespace = "http://schemas.openxmlformats.org/package/2006/relationships"
	imageRelType  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
)

// docxPackage is an OOXML zip held in memory with its original part order.
type docxPackage struct {
	order []string
	files map[string][]byte
}

func openPackage(path string) (*docxPackage, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	pkg := &docxPackage{files: make(map[string][]byte, len(zr.File))}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open part %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read part %s: %w", f.Name, err)
		}
		pkg.set(f.Name, data)
	}

	for _, required := range []string{contentTypesPart, documentPart} {
		if _, ok := pkg.files[required]; !ok {
			return nil, fmt.Errorf("missing part %s", required)
		}
	}
	return pkg, nil
}

func (p *docxPackage) set(name string, data []byte) {
	if _, ok := p.files[name]; !ok {
		p.order = append(p.order, name)
	}
	p.files[name] = data
}

// embed stores the images as media parts, links them from the main document
// and registers the png content type.
func (p *docxPackage) embed(images map[string]*embeddedImage) error {
	if len(images) == 0 {
		return nil
	}

	rels, ok := p.files[documentRelsPart]
	if !ok {
		rels = []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<Relationships xmlns="` + relsNamespace + `"></Relationships>`)
	}
	var links strings.Builder
	for _, name := range sortedKeys(images) {
		img := images[name]
		p.set(img.part, img.png)
		fmt.Fprintf(&links, `<Relationship Id="%s" Type="%s" Target="%s"/>`,
			img.relID, imageRelType, strings.TrimPrefix(img.part, "word/"))
	}
	rels, err := insertBefore(rels, "</Relationships>", links.String())
	if err != nil {
		return fmt.Errorf("%s: %w", documentRelsPart, err)
	}
	p.set(documentRelsPart, rels)

	types := p.files[contentTypesPart]
	if !bytes.Contains(types, []byte(`Extension="png"`)) {
		types, err = insertBefore(types, "</Types>", `<Default Extension="png" ContentType="image/png"/>`)
		if err != nil {
			return fmt.Errorf("%s: %w", contentTypesPart, err)
		}
		p.set(contentTypesPart, types)
	}
	return nil
}

func insertBefore(doc []byte, closing, fragment string) ([]byte, error) {
	i := bytes.LastIndex(doc, []byte(closing))
	if i < 0 {
		return nil, errors.New("closing " + closing + " not found")
	}
	out := make([]byte, 0, len(doc)+len(fragment))
	out = append(out, doc[:i]...)
	out = append(out, fragment...)
	return append(out, doc[i:]...), nil
}

func (p *docxPackage) writeTo(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, name := range p.order {
		fw, err := zw.Create(name)
		if err != nil {
			return err
		}
		if _, err := fw.Write(p.files[name]); err != nil {
			return err
		}
	}
	return zw.Close()
}
