package document

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"regexp"

	"github.com/disintegration/imaging"
)

// emuPerPixel converts 96-dpi pixels to English Metric Units.
const emuPerPixel = 9525

type embeddedImage struct {
	name   string
	relID  string
	part   string
	png    []byte
	width  int
	height int
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]`)

func prepareImage(name string, img Image) (*embeddedImage, error) {
	var (
		src image.Image
		err error
	)
	switch {
	case len(img.Data) > 0:
		src, err = imaging.Decode(bytes.NewReader(img.Data))
	case img.Path != "":
		src, err = imaging.Open(img.Path)
	default:
		err = errors.New("no path or data")
	}
	if err != nil {
		return nil, err
	}

	if img.Width > 0 || img.Height > 0 {
		src = imaging.Resize(src, img.Width, img.Height, imaging.Lanczos)
	}
	bounds := src.Bounds()

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	safe := unsafeName.ReplaceAllString(name, "_")
	return &embeddedImage{
		name:   name,
		relID:  "rIdImg_" + safe,
		part:   "word/media/" + safe + ".png",
		png:    buf.Bytes(),
		width:  bounds.Dx(),
		height: bounds.Dy(),
	}, nil
}

// drawingXML is an inline picture run. Namespaces are declared on the elements
// that use them so any template body can host it.
func (e *embeddedImage) drawingXML(shapeID int) string {
	cx, cy := e.width*emuPerPixel, e.height*emuPerPixel
	return fmt.Sprintf(`<w:r><w:drawing>`+
		`<wp:inline xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing" distT="0" distB="0" distL="0" distR="0">`+
		`<wp:extent cx="%[1]d" cy="%[2]d"/>`+
		`<wp:docPr id="%[3]d" name="%[4]s"/>`+
		`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">`+
		`<a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:nvPicPr><pic:cNvPr id="%[3]d" name="%[4]s.png"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" r:embed="%[5]s"/>`+
		`<a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%[1]d" cy="%[2]d"/></a:xfrm>`+
		`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r>`,
		cx, cy, shapeID, unsafeName.ReplaceAllString(e.name, "_"), e.relID)
}
