// Package pipeline turns a stored itinerary into a branded PDF: it captures the
// route map, fills the Word template and has the result converted.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tourdoc/apperr"
	"tourdoc/convert"
	"tourdoc/document"
	"tourdoc/logging"
	"tourdoc/metrics"
	"tourdoc/models"
	"tourdoc/snapshot"
	"tourdoc/store"
)

// Stage names a step of a run, reported to progress observers.
type Stage string

const (
	StageLoading    Stage = "loading"
	StageSnapshot   Stage = "snapshot"
	StageRendering  Stage = "rendering"
	StageConverting Stage = "converting"
	StageDone       Stage = "done"
)

type Renderer interface {
	Render(templatePath string, data document.Data, images map[string]document.Image, outPath string) error
}

type Options struct {
	TemplatePath  string
	OutputDir     string
	ScreenshotDir string
	AssetsDir     string
	// Now defaults to time.Now.
	Now func() time.Time
}

type Result struct {
	DocxPath     string
	PDFPath      string
	SnapshotPath string
}

type Pipeline struct {
	store     store.Store
	snapshots snapshot.Service
	renderer  Renderer
	converter convert.Service
	opts      Options
}

func New(s store.Store, snapshots snapshot.Service, renderer Renderer, converter convert.Service, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{store: s, snapshots: snapshots, renderer: renderer, converter: converter, opts: opts}
}

// Run produces the documents for one itinerary.
func (p *Pipeline) Run(ctx context.Context, itineraryID string) (Result, error) {
	return p.RunWithProgress(ctx, itineraryID, nil)
}

// RunWithProgress is Run with report called at the start of every stage.
func (p *Pipeline) RunWithProgress(ctx context.Context, itineraryID string, report func(Stage)) (Result, error) {
	if report == nil {
		report = func(Stage) {}
	}
	started := time.Now()
	log := logging.Ctx(ctx).With().Str("itinerary_id", itineraryID).Logger()

	res, err := p.run(ctx, itineraryID, report)

	metrics.PipelineDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.PipelineRuns.WithLabelValues(apperr.KindOf(err).String()).Inc()
		log.Error().Err(err).Msg("itinerary document run failed")
		return Result{}, err
	}
	metrics.PipelineRuns.WithLabelValues("success").Inc()
	log.Info().Str("pdf", res.PDFPath).Dur("took", time.Since(started)).Msg("itinerary document ready")
	report(StageDone)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, itineraryID string, report func(Stage)) (Result, error) {
	const op = "pipeline.Run"
	report(StageLoading)

	it, err := store.FindItinerary(ctx, p.store, itineraryID)
	if err != nil {
		return Result{}, err
	}
	if err := validatePayload(it.Data); err != nil {
		return Result{}, err
	}
	owner, err := p.store.GetUser(ctx, it.UserID)
	if err != nil {
		return Result{}, err
	}
	if owner.CompanyInfo.IsZero() {
		return Result{}, apperr.NotFound(op, "user %s has no company information", owner.UserID)
	}
	route, err := EncodeRoute(it.Data.Route)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		DocxPath:     filepath.Join(p.opts.OutputDir, it.ID+".docx"),
		PDFPath:      filepath.Join(p.opts.OutputDir, it.ID+".pdf"),
		SnapshotPath: filepath.Join(p.opts.ScreenshotDir, it.ID+".png"),
	}

	report(StageSnapshot)
	img, err := p.snapshots.Capture(ctx, route, snapshot.ProfileDesktop)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(p.opts.ScreenshotDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create screenshot directory: %w", err)
	}
	if err := os.WriteFile(res.SnapshotPath, img, 0o644); err != nil {
		return Result{}, fmt.Errorf("save snapshot: %w", err)
	}

	report(StageRendering)
	formatted, err := Format(it, owner.CompanyInfo, p.opts.Now())
	if err != nil {
		return Result{}, err
	}
	images, err := p.images(it, owner.CompanyInfo, res.SnapshotPath)
	if err != nil {
		return Result{}, err
	}
	if err := p.renderer.Render(p.opts.TemplatePath, formatted.Data(), images, res.DocxPath); err != nil {
		return Result{}, err
	}

	report(StageConverting)
	if err := p.converter.Convert(ctx, res.DocxPath, res.PDFPath); err != nil {
		return Result{}, err
	}

	p.markDownloaded(ctx, it)
	return res, nil
}

func (p *Pipeline) images(it *models.Itinerary, company models.CompanyInfo, snapshotPath string) (map[string]document.Image, error) {
	logo := strings.TrimSpace(company.Logo)
	if logo == "" {
		logo = filepath.Join(p.opts.AssetsDir, DefaultLogo)
	}
	cover := filepath.Join(p.opts.AssetsDir, DefaultCover)
	if it.Data.CoverImage == models.CoverCustom && strings.TrimSpace(it.Data.CustomCoverImage) != "" {
		cover = strings.TrimSpace(it.Data.CustomCoverImage)
	}
	qr, err := companyQR(company.Website, company.Name)
	if err != nil {
		return nil, fmt.Errorf("encode company qr: %w", err)
	}

	return map[string]document.Image{
		"logo":  {Path: logo, Width: logoWidth, Height: logoHeight},
		"cover": {Path: cover, Width: coverWidth, Height: coverHeight},
		"map":   {Path: snapshotPath, Width: mapWidth, Height: mapHeight},
		"qr":    {Data: qr, Width: qrSize, Height: qrSize},
	}, nil
}

// markDownloaded records a successful run. A failure here does not fail the run.
func (p *Pipeline) markDownloaded(ctx context.Context, it *models.Itinerary) {
	it.Status = models.StatusDownloaded
	it.LastModified = p.opts.Now().UTC()
	if err := p.store.PutItinerary(ctx, it); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("itinerary_id", it.ID).Msg("could not update itinerary status")
	}
}

func validatePayload(p models.Payload) error {
	const op = "pipeline.validate"
	switch {
	case strings.TrimSpace(p.Route) == "":
		return apperr.Validation(op, "route is empty")
	case len(p.DailyPlans) == 0:
		return apperr.Validation(op, "itinerary has no daily plans")
	case p.Days < 1:
		return apperr.Validation(op, "day count must be at least 1, got %d", p.Days)
	}
	if _, err := time.Parse(dateLayout, strings.TrimSpace(p.StartDate)); err != nil {
		return apperr.Validation(op, "start date %q is not YYYY-MM-DD", p.StartDate)
	}
	return nil
}
