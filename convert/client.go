// Package convert turns .docx files into PDFs through the remote conversion service:
// upload, start a job, poll it, then download the result.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"tourdoc/apperr"
	"tourdoc/breaker"
	"tourdoc/logging"
)

type Service interface {
	Convert(ctx context.Context, docxPath, pdfPath string) error
}

type Config struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	MaxAttempts  int
	Timeout      time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	breaker *breaker.Breaker
}

type fileResponse struct {
	ID string `json:"id"`
}

type jobRequest struct {
	FileID       string `json:"file_id"`
	OutputFormat string `json:"output_format"`
}

type jobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func New(cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker.New("convert"),
	}
}

// Convert uploads docxPath, waits for the job and writes the PDF to pdfPath.
func (c *Client) Convert(ctx context.Context, docxPath, pdfPath string) error {
	const op = "convert.Convert"
	if !strings.EqualFold(filepath.Ext(pdfPath), ".pdf") {
		return apperr.Validation(op, "output %s is not a .pdf path", filepath.Base(pdfPath))
	}

	task, err := c.Start(ctx, docxPath)
	if err != nil {
		return err
	}
	if _, err := task.Wait(ctx); err != nil {
		return err
	}
	return c.download(ctx, task.JobID, pdfPath)
}

// Start uploads the file and starts a conversion job. The returned task polls
// the job until it reaches a terminal state or ctx is cancelled.
func (c *Client) Start(ctx context.Context, docxPath string) (*Task, error) {
	fileID, err := breaker.Do(c.breaker, func() (string, error) {
		return c.upload(ctx, docxPath)
	})
	if err != nil {
		return nil, err
	}
	job, err := breaker.Do(c.breaker, func() (jobResponse, error) {
		return c.createJob(ctx, fileID)
	})
	if err != nil {
		return nil, err
	}

	task := newTask(job.ID, c.cfg.MaxAttempts+3)
	task.emit(StateUploaded)
	go c.poll(ctx, task, remoteState(job.Status))
	return task, nil
}

func (c *Client) poll(ctx context.Context, task *Task, first State) {
	const op = "convert.poll"
	log := logging.Ctx(ctx).With().Str("job_id", task.JobID).Logger()

	state := StateUploaded
	advance := func(next State) bool {
		if err := Transition(state, next); err != nil {
			task.finish(StateFailed, apperr.Remote(op, err, "conversion job reported an unexpected status"))
			return false
		}
		state = next
		task.emit(state)
		switch state {
		case StateDone:
			task.finish(state, nil)
			return false
		case StateFailed:
			task.finish(state, apperr.Remote(op, nil, "conversion job %s failed", task.JobID))
			return false
		case StateTimedOut:
			task.finish(state, apperr.Timeout(op, "conversion job %s did not finish after %d polls", task.JobID, c.cfg.MaxAttempts))
			return false
		}
		return true
	}

	if first == StateFailed {
		advance(StateFailed)
		return
	}
	if !advance(StateConverting) || (first == StateDone && !advance(StateDone)) {
		return
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			task.finish(state, ctx.Err())
			return
		case <-ticker.C:
		}

		job, err := breaker.Do(c.breaker, func() (jobResponse, error) {
			return c.jobStatus(ctx, task.JobID)
		})
		if err != nil {
			task.finish(StateFailed, err)
			return
		}
		log.Debug().Int("attempt", attempt).Str("status", job.Status).Msg("conversion job polled")
		if !advance(remoteState(job.Status)) {
			return
		}
	}

	advance(StateTimedOut)
}

func (c *Client) upload(ctx context.Context, docxPath string) (string, error) {
	const op = "convert.upload"

	f, err := os.Open(docxPath)
	if err != nil {
		return "", apperr.Validation(op, "cannot open %s", filepath.Base(docxPath))
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(docxPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read %s: %w", docxPath, err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var out fileResponse
	if err := c.doJSON(ctx, op, http.MethodPost, "/v1/files", mw.FormDataContentType(), &body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", apperr.Remote(op, nil, "conversion service returned no file id")
	}
	return out.ID, nil
}

func (c *Client) createJob(ctx context.Context, fileID string) (jobResponse, error) {
	const op = "convert.createJob"

	payload, err := json.Marshal(jobRequest{FileID: fileID, OutputFormat: "pdf"})
	if err != nil {
		return jobResponse{}, err
	}
	var out jobResponse
	if err := c.doJSON(ctx, op, http.MethodPost, "/v1/jobs", "application/json", bytes.NewReader(payload), &out); err != nil {
		return jobResponse{}, err
	}
	if out.ID == "" {
		return jobResponse{}, apperr.Remote(op, nil, "conversion service returned no job id")
	}
	return out, nil
}

func (c *Client) jobStatus(ctx context.Context, jobID string) (jobResponse, error) {
	var out jobResponse
	err := c.doJSON(ctx, "convert.jobStatus", http.MethodGet, "/v1/jobs/"+jobID, "", nil, &out)
	return out, err
}

func (c *Client) download(ctx context.Context, jobID, pdfPath string) error {
	const op = "convert.download"
	_, err := breaker.Do(c.breaker, func() (struct{}, error) {
		resp, err := c.send(ctx, op, http.MethodGet, "/v1/jobs/"+jobID+"/result", "", nil)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		return struct{}{}, writeFile(pdfPath, resp.Body)
	})
	return err
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".convert-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return apperr.Remote("convert.download", err, "cannot read converted file")
	}
	if n == 0 {
		return apperr.Remote("convert.download", nil, "conversion service returned an empty file")
	}
	return os.Rename(tmp.Name(), path)
}

func (c *Client) doJSON(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	resp, err := c.send(ctx, op, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Remote(op, err, "invalid response from conversion service")
	}
	return nil
}

// send performs a request and returns the response only for 2xx statuses.
func (c *Client) send(ctx context.Context, op, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, apperr.Remote(op, err, "cannot build request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Remote(op, err, "conversion service unreachable")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, apperr.Remote(op, fmt.Errorf("%s", bytes.TrimSpace(msg)), "conversion service returned %d", resp.StatusCode)
	}
	return resp, nil
}
