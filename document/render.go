// Package document fills Word (.docx) templates.
//
// A template is an ordinary .docx whose word/document.xml body is a text/template:
//
//	<w:t>{{.tourist_name}}</w:t>
//	{{range .details}}<w:p>...{{.date}}...</w:p>{{end}}
//	<w:p>{{image "map"}}</w:p>
//
// Scalar values are XML-escaped before execution. Every image handed to Render
// must be placed by the template and every placed image must be handed to Render.
// A placeholder counts as placed even when it sits in a range or if branch that
// renders nothing for the given data.
package document

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/template"
	"text/template/parse"

	"tourdoc/apperr"
)

// Data maps placeholder names to values. Repeated blocks take []map[string]any.
type Data map[string]any

// Image is a picture placed by an {{image "name"}} placeholder. Data, when set,
// is used instead of reading Path. Width and Height are target pixels; a zero
// dimension keeps the aspect ratio.
type Image struct {
	Path   string
	Data   []byte
	Width  int
	Height int
}

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render merges data and images into the template at templatePath and writes
// the document to outPath, creating parent directories.
func (r *Renderer) Render(templatePath string, data Data, images map[string]Image, outPath string) error {
	const op = "document.Render"

	pkg, err := openPackage(templatePath)
	if err != nil {
		return apperr.Template(op, err, "cannot open template %s", filepath.Base(templatePath))
	}

	media := make(map[string]*embeddedImage, len(images))
	for _, name := range sortedKeys(images) {
		img, err := prepareImage(name, images[name])
		if err != nil {
			return apperr.Template(op, err, "cannot load image %q", name)
		}
		media[name] = img
	}

	used := make(map[string]bool, len(media))
	shapeID := 0
	funcs := template.FuncMap{
		"image": func(name string) (string, error) {
			img, ok := media[name]
			if !ok {
				return "", fmt.Errorf("image %q was not supplied", name)
			}
			used[name] = true
			shapeID++
			return img.drawingXML(shapeID), nil
		},
	}

	tmpl, err := template.New("document").Option("missingkey=error").Funcs(funcs).Parse(string(pkg.files[documentPart]))
	if err != nil {
		return apperr.Template(op, err, "template markup is invalid")
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, escapeValue(map[string]any(data))); err != nil {
		return apperr.Template(op, err, "cannot fill template")
	}

	placed := placedImages(tmpl.Tree.Root)
	for _, name := range sortedKeys(media) {
		if !used[name] && !placed[name] {
			return apperr.Template(op, nil, "template has no placeholder for image %q", name)
		}
	}

	pkg.set(documentPart, body.Bytes())
	if err := pkg.embed(media); err != nil {
		return apperr.Template(op, err, "cannot embed images")
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	if err := pkg.writeTo(f); err != nil {
		f.Close()
		os.Remove(outPath)
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	return f.Close()
}

// placedImages collects the literal names of every {{image "..."}} call in the
// template, executed or not.
func placedImages(root parse.Node) map[string]bool {
	names := make(map[string]bool)
	var walk func(n parse.Node)
	walkPipe := func(p *parse.PipeNode) {
		if p == nil {
			return
		}
		for _, cmd := range p.Cmds {
			if len(cmd.Args) >= 2 {
				if id, ok := cmd.Args[0].(*parse.IdentifierNode); ok && id.Ident == "image" {
					if str, ok := cmd.Args[1].(*parse.StringNode); ok {
						names[str.Text] = true
					}
				}
			}
			for _, arg := range cmd.Args {
				walk(arg)
			}
		}
	}
	walk = func(n parse.Node) {
		switch n := n.(type) {
		case *parse.ListNode:
			if n == nil {
				return
			}
			for _, c := range n.Nodes {
				walk(c)
			}
		case *parse.ActionNode:
			walkPipe(n.Pipe)
		case *parse.PipeNode:
			walkPipe(n)
		case *parse.IfNode:
			walkPipe(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.RangeNode:
			walkPipe(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.WithNode:
			walkPipe(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.TemplateNode:
			walkPipe(n.Pipe)
		}
	}
	walk(root)
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
