package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/phpdave11/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourdoc/convert"
	"tourdoc/document"
)

// conversionService is an in-process stand-in for the remote DOCX to PDF API.
type conversionService struct {
	mu       sync.Mutex
	uploaded []byte
	polls    int
	pdf      []byte
}

func (c *conversionService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/files", func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		c.mu.Lock()
		c.uploaded = data
		c.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "file-1"})
	})
	mux.HandleFunc("POST /v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "queued"})
	})
	mux.HandleFunc("GET /v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.polls++
		status := "processing"
		if c.polls > 1 {
			status = "completed"
		}
		c.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"id": r.PathValue("id"), "status": status})
	})
	mux.HandleFunc("GET /v1/jobs/{id}/result", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(c.pdf)
	})
	return mux
}

func itineraryPDF(t *testing.T) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(40, 10, "Colombo - Kandy - Nuwara Eliya")
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func TestRunRendersAndConvertsRemotely(t *testing.T) {
	f := newFixture(t)
	svc := &conversionService{pdf: itineraryPDF(t)}
	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)
	client := convert.New(convert.Config{BaseURL: srv.URL, PollInterval: 5 * time.Millisecond, MaxAttempts: 10})
	p := New(f.store, f.snapshots, document.NewRenderer(), client, f.opts)

	res, err := p.Run(context.Background(), "it-1")
	require.NoError(t, err)

	// The service received the rendered document byte for byte.
	docx, err := os.ReadFile(res.DocxPath)
	require.NoError(t, err)
	svc.mu.Lock()
	uploaded := svc.uploaded
	svc.mu.Unlock()
	require.Equal(t, docx, uploaded)

	zr, err := zip.NewReader(bytes.NewReader(uploaded), int64(len(uploaded)))
	require.NoError(t, err)
	var body string
	for _, zf := range zr.File {
		if zf.Name != "word/document.xml" {
			continue
		}
		rc, err := zf.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		body = string(b)
	}
	require.NotEmpty(t, body, "word/document.xml missing from upload")
	assert.Contains(t, body, "Gregory Lake boat ride")
	assert.Contains(t, body, "Ann &lt;Smith&gt;")
	assert.False(t, strings.Contains(body, "{{"), "unrendered placeholder left in document")

	assert.Equal(t, filepath.Join(f.opts.OutputDir, "it-1.pdf"), res.PDFPath)
	pdf, err := os.ReadFile(res.PDFPath)
	require.NoError(t, err)
	assert.Equal(t, svc.pdf, pdf)
	assert.Zero(t, f.converter.calls)
}
