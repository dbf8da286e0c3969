package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourdoc/apperr"
	"tourdoc/document"
	"tourdoc/models"
	"tourdoc/snapshot"
	"tourdoc/store"
)

type fakeSnapshots struct {
	img     []byte
	err     error
	calls   int
	route   string
	profile snapshot.Profile
}

func (f *fakeSnapshots) Capture(_ context.Context, route string, profile snapshot.Profile) ([]byte, error) {
	f.calls++
	f.route = route
	f.profile = profile
	return f.img, f.err
}

type fakeConverter struct {
	err   error
	calls int
}

func (f *fakeConverter) Convert(_ context.Context, docxPath, pdfPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if _, err := os.Stat(docxPath); err != nil {
		return err
	}
	return os.WriteFile(pdfPath, []byte("%PDF-1.4 fake"), 0o644)
}

type fixture struct {
	p         *Pipeline
	store     *store.MemoryStore
	snapshots *fakeSnapshots
	converter *fakeConverter
	opts      Options
}

var fixedNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

func mapPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(64, 48, color.NRGBA{B: 255, A: 255}), imaging.PNG))
	return buf.Bytes()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	opts := Options{
		TemplatePath:  filepath.Join(dir, "templates", "itinerary.docx"),
		OutputDir:     filepath.Join(dir, "out"),
		ScreenshotDir: filepath.Join(dir, "screenshots"),
		AssetsDir:     filepath.Join(dir, "assets"),
		Now:           func() time.Time { return fixedNow },
	}
	_, err := document.EnsureTemplate(opts.TemplatePath)
	require.NoError(t, err)
	require.NoError(t, EnsureAssets(opts.AssetsDir))

	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateUser(ctx, &models.User{
		UserID:      "u1",
		Username:    "agent",
		CompanyInfo: models.CompanyInfo{Name: "Lanka & Co Tours", Website: "https://lanka.example"},
	}))
	require.NoError(t, s.PutItinerary(ctx, sampleItinerary("u1", "it-1")))

	f := &fixture{
		store:     s,
		snapshots: &fakeSnapshots{img: mapPNG(t)},
		converter: &fakeConverter{},
		opts:      opts,
	}
	f.p = New(s, f.snapshots, document.NewRenderer(), f.converter, opts)
	return f
}

func sampleItinerary(userID, id string) *models.Itinerary {
	return &models.Itinerary{
		ID:     id,
		UserID: userID,
		Status: models.StatusGenerated,
		Data: models.Payload{
			Route:       "Colombo - Kandy - Nuwara Eliya",
			TouristName: "Ann <Smith>",
			Travelers:   2,
			StartDate:   "2026-03-01",
			Days:        3,
			CoverImage:  models.CoverDefault,
			DailyPlans: []models.DailyPlan{
				{Place: "Colombo", Activity: "arrival", Meals: &models.Meals{Dinner: true}, OvernightStay: true, Hotel: "cinnamon_grand"},
				{Place: "Kandy", Activity: "temple", Meals: &models.Meals{Breakfast: true, Lunch: true, Dinner: true}, OvernightStay: true},
				{Place: "Nuwara Eliya", Activity: models.Custom, CustomActivity: "Gregory Lake boat ride", Description: "Cool climate\nBring a jacket"},
			},
		},
	}
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	var stages []Stage

	res, err := f.p.RunWithProgress(context.Background(), "it-1", func(s Stage) { stages = append(stages, s) })
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(f.opts.OutputDir, "it-1.docx"), res.DocxPath)
	assert.Equal(t, filepath.Join(f.opts.OutputDir, "it-1.pdf"), res.PDFPath)
	assert.Equal(t, filepath.Join(f.opts.ScreenshotDir, "it-1.png"), res.SnapshotPath)
	assert.FileExists(t, res.PDFPath)
	assert.FileExists(t, res.SnapshotPath)
	assert.Equal(t, []Stage{StageLoading, StageSnapshot, StageRendering, StageConverting, StageDone}, stages)

	assert.Equal(t, "&start;Colombo&Kandy&end;Nuwara Eliya", f.snapshots.route)
	assert.Equal(t, snapshot.ProfileDesktop, f.snapshots.profile)

	zr, err := zip.OpenReader(res.DocxPath)
	require.NoError(t, err)
	defer zr.Close()
	names := map[string]bool{}
	for _, zf := range zr.File {
		names[zf.Name] = true
	}
	for _, img := range document.DefaultImages {
		assert.True(t, names["word/media/"+img+".png"], "missing %s image", img)
	}

	it, err := f.store.GetItinerary(context.Background(), store.Key{UserID: "u1", ItineraryID: "it-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDownloaded, it.Status)
	assert.Equal(t, fixedNow, it.LastModified)
}

func TestRunUnknownItineraryCreatesNoFiles(t *testing.T) {
	f := newFixture(t)

	_, err := f.p.Run(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
	assert.NoDirExists(t, f.opts.OutputDir)
	assert.NoDirExists(t, f.opts.ScreenshotDir)
	assert.Zero(t, f.snapshots.calls)
}

func TestRunRejectsBadItineraries(t *testing.T) {
	cases := map[string]func(p *models.Payload){
		"single place route": func(p *models.Payload) { p.Route = "Colombo" },
		"empty route":        func(p *models.Payload) { p.Route = "  " },
		"no plans":           func(p *models.Payload) { p.DailyPlans = nil },
		"zero days":          func(p *models.Payload) { p.Days = 0 },
		"bad start date":     func(p *models.Payload) { p.StartDate = "01/03/2026" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			it := sampleItinerary("u1", "it-bad")
			mutate(&it.Data)
			require.NoError(t, f.store.PutItinerary(context.Background(), it))

			_, err := f.p.Run(context.Background(), "it-bad")
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
			assert.Zero(t, f.snapshots.calls)
			assert.NoDirExists(t, f.opts.ScreenshotDir)
		})
	}
}

func TestRunRequiresCompanyInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateUser(ctx, &models.User{UserID: "u2", Username: "solo"}))
	require.NoError(t, f.store.PutItinerary(ctx, sampleItinerary("u2", "it-2")))

	_, err := f.p.Run(ctx, "it-2")
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
	assert.Zero(t, f.snapshots.calls)
}

func TestRunSnapshotFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.snapshots.err = apperr.Remote("snapshot.Capture", nil, "capture rejected")

	_, err := f.p.Run(context.Background(), "it-1")
	assert.True(t, apperr.Is(err, apperr.KindRemoteService), "got %v", err)
	assert.Zero(t, f.converter.calls)
	assert.NoFileExists(t, filepath.Join(f.opts.OutputDir, "it-1.docx"))

	it, err := f.store.GetItinerary(context.Background(), store.Key{UserID: "u1", ItineraryID: "it-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerated, it.Status)
}

func TestRunConversionTimeout(t *testing.T) {
	f := newFixture(t)
	f.converter.err = apperr.Timeout("convert.poll", "conversion did not finish")

	_, err := f.p.Run(context.Background(), "it-1")
	assert.True(t, apperr.Is(err, apperr.KindTimeout), "got %v", err)
	assert.FileExists(t, filepath.Join(f.opts.OutputDir, "it-1.docx"))
}

func TestRunMissingCustomCover(t *testing.T) {
	f := newFixture(t)
	it := sampleItinerary("u1", "it-cover")
	it.Data.CoverImage = models.CoverCustom
	it.Data.CustomCoverImage = filepath.Join(t.TempDir(), "nope.jpg")
	require.NoError(t, f.store.PutItinerary(context.Background(), it))

	_, err := f.p.Run(context.Background(), "it-cover")
	assert.True(t, apperr.Is(err, apperr.KindTemplate), "got %v", err)
	assert.Zero(t, f.converter.calls)
}

func TestEnsureAssetsKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	logo := filepath.Join(dir, DefaultLogo)
	require.NoError(t, os.WriteFile(logo, []byte("custom"), 0o644))

	require.NoError(t, EnsureAssets(dir))

	data, err := os.ReadFile(logo)
	require.NoError(t, err)
	assert.Equal(t, "custom", string(data))
	assert.FileExists(t, filepath.Join(dir, DefaultCover))
}
