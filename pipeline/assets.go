package pipeline

import (
	"errors"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultLogo  = "default_logo.png"
	DefaultCover = "default_cover.png"

	logoWidth, logoHeight   = 150, 75
	coverWidth, coverHeight = 600, 400
	mapWidth, mapHeight     = 600, 400
	qrSize                  = 120
)

var placeholders = []struct {
	name          string
	width, height int
	fill          color.NRGBA
}{
	{DefaultLogo, logoWidth * 2, logoHeight * 2, color.NRGBA{R: 0x1f, G: 0x4e, B: 0x79, A: 0xff}},
	{DefaultCover, coverWidth, coverHeight, color.NRGBA{R: 0x2e, G: 0x8b, B: 0x57, A: 0xff}},
}

// EnsureAssets writes plain placeholder images for the default logo and cover
// when dir does not already provide them.
func EnsureAssets(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, p := range placeholders {
		path := filepath.Join(dir, p.name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := imaging.Save(imaging.New(p.width, p.height, p.fill), path); err != nil {
			return err
		}
	}
	return nil
}

// companyQR encodes the agency website, or its name when no website is set.
func companyQR(website, name string) ([]byte, error) {
	content := website
	if content == "" {
		content = name
	}
	return qrcode.Encode(content, qrcode.Medium, 256)
}
