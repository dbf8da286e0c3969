package itinerary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourdoc/apperr"
	"tourdoc/jobs"
	"tourdoc/middleware"
	"tourdoc/models"
	"tourdoc/pipeline"
	"tourdoc/store"
)

type fakePipeline struct {
	release chan struct{}
	err     error
}

func (f *fakePipeline) RunWithProgress(ctx context.Context, itineraryID string, report func(pipeline.Stage)) (pipeline.Result, error) {
	report(pipeline.StageLoading)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return pipeline.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return pipeline.Result{}, f.err
	}
	report(pipeline.StageConverting)
	report(pipeline.StageDone)
	return pipeline.Result{
		DocxPath: filepath.Join("/tmp/out", itineraryID+".docx"),
		PDFPath:  filepath.Join("/tmp/out", itineraryID+".pdf"),
	}, nil
}

type fixture struct {
	store  *store.MemoryStore
	authn  *middleware.Authenticator
	router *httprouter.Router
	h      *Handlers
}

func newFixture(t *testing.T, p jobs.Pipeline, wait time.Duration) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	runner := jobs.NewRunner(p, jobs.NewMemoryStatusStore(), 1, 4)
	runner.Start()
	t.Cleanup(func() { _ = runner.Shutdown(context.Background()) })

	h := &Handlers{Store: s, Jobs: runner, OutputDir: t.TempDir(), DownloadWait: wait}
	authn := middleware.NewAuthenticator("test-secret", time.Hour)

	r := httprouter.New()
	r.POST("/api/generate", authn.Authenticate(h.Generate))
	r.GET("/api/itineraries", authn.Authenticate(h.List))
	r.GET("/api/itineraries/:id", authn.Authenticate(h.Get))
	r.POST("/api/download", authn.Authenticate(h.Download))
	r.GET("/api/jobs/:id", authn.Authenticate(h.Job))
	r.GET("/ws/jobs/:id", authn.Authenticate(h.JobSocket))
	r.GET("/document/:filename", h.Document)

	for _, id := range []string{"u1", "u2"} {
		require.NoError(t, s.CreateUser(context.Background(), &models.User{UserID: id, Username: "agent-" + id}))
	}
	return &fixture{store: s, authn: authn, router: r, h: h}
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := f.authn.Issue(&models.User{UserID: userID, Username: "agent-" + userID})
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const payloadJSON = `{
	"route": "Colombo - Kandy - Ella",
	"touristName": "Ann Perera",
	"travelers": 2,
	"startDate": "2026-03-01",
	"days": 3,
	"dailyPlans": [
		{"place": "Colombo", "activity": "arrival", "overnightStay": true, "hotel": "cinnamon_grand"},
		{"place": "Kandy", "activity": "temple", "meals": {"breakfast": true}},
		{"place": "Ella", "activity": "custom", "customActivity": "Nine Arch Bridge walk"}
	]
}`

func (f *fixture) generate(t *testing.T, userID string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/generate?userId="+userID, userID, payloadJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]string](t, rec)["itineraryId"]
}

func TestGenerateListAndGet(t *testing.T) {
	f := newFixture(t, &fakePipeline{}, time.Second)

	first := f.generate(t, "u1")
	time.Sleep(2 * time.Millisecond)
	second := f.generate(t, "u1")

	it, err := f.store.GetItinerary(context.Background(), store.Key{UserID: "u1", ItineraryID: first})
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerated, it.Status)
	assert.Equal(t, models.CoverDefault, it.Data.CoverImage)
	assert.Len(t, it.Data.DailyPlans, 3)

	u, err := f.store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, u.ItineraryCount)

	rec := f.do(t, http.MethodGet, "/api/itineraries?userId=u1", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.Itinerary](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)

	rec = f.do(t, http.MethodGet, "/api/itineraries/"+first, "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ann Perera", decode[models.Itinerary](t, rec).Data.TouristName)

	rec = f.do(t, http.MethodGet, "/api/itineraries/"+first, "u2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/itineraries", "u2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGenerateRejects(t *testing.T) {
	f := newFixture(t, &fakePipeline{}, time.Second)

	tests := []struct {
		name string
		path string
		user string
		body string
		code int
	}{
		{"no token", "/api/generate", "", payloadJSON, http.StatusUnauthorized},
		{"other user in query", "/api/generate?userId=u2", "u1", payloadJSON, http.StatusForbidden},
		{"missing plans", "/api/generate", "u1", `{"route":"A","touristName":"B","travelers":1,"startDate":"2026-03-01","days":1}`, http.StatusBadRequest},
		{"zero travelers", "/api/generate", "u1", strings.Replace(payloadJSON, `"travelers": 2`, `"travelers": 0`, 1), http.StatusBadRequest},
		{"custom cover without image", "/api/generate", "u1", strings.Replace(payloadJSON, `"days": 3`, `"days": 3, "coverImage": "custom"`, 1), http.StatusBadRequest},
		{"bad date", "/api/generate", "u1", strings.Replace(payloadJSON, "2026-03-01", "March 1", 1), http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tc.path, tc.user, tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}

	list, err := f.store.ListItineraries(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDownloadReturnsLinks(t *testing.T) {
	f := newFixture(t, &fakePipeline{}, 5*time.Second)
	id := f.generate(t, "u1")

	rec := f.do(t, http.MethodPost, "/api/download", "u1", `{"itineraryId":"`+id+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "/document/"+id+".pdf", body["pdf"])
	assert.Equal(t, "/document/"+id+".docx", body["docx"])
	assert.NotEmpty(t, body["jobId"])
}

func TestDownloadOfOtherUsersItinerary(t *testing.T) {
	f := newFixture(t, &fakePipeline{}, time.Second)
	id := f.generate(t, "u1")

	rec := f.do(t, http.MethodPost, "/api/download", "u2", `{"itineraryId":"`+id+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/download", "u1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadReportsPipelineError(t *testing.T) {
	f := newFixture(t, &fakePipeline{err: apperr.Remote("convert.Convert", nil, "conversion service rejected the document")}, 5*time.Second)
	id := f.generate(t, "u1")

	rec := f.do(t, http.MethodPost, "/api/download", "u1", `{"itineraryId":"`+id+`"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"conversion service rejected the document"}`, rec.Body.String())
}

func waitForState(t *testing.T, f *fixture, jobID string, want jobs.State) map[string]any {
	t.Helper()
	var body map[string]any
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/api/jobs/"+jobID, "u1", "")
		if rec.Code != http.StatusOK {
			return false
		}
		body = decode[map[string]any](t, rec)
		return body["state"] == string(want)
	}, 5*time.Second, 10*time.Millisecond)
	return body
}

func TestSlowDownloadFallsBackToJob(t *testing.T) {
	fake := &fakePipeline{release: make(chan struct{})}
	f := newFixture(t, fake, 30*time.Millisecond)
	id := f.generate(t, "u1")

	rec := f.do(t, http.MethodPost, "/api/download", "u1", `{"itineraryId":"`+id+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	accepted := decode[map[string]string](t, rec)
	jobID := accepted["jobId"]
	require.NotEmpty(t, jobID)
	assert.Equal(t, "/api/jobs/"+jobID, accepted["status"])

	running := waitForState(t, f, jobID, jobs.StateRunning)
	assert.Equal(t, id, running["itineraryId"])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/jobs/"+jobID, "u2", "").Code)

	close(fake.release)
	done := waitForState(t, f, jobID, jobs.StateDone)
	assert.Equal(t, "/document/"+id+".pdf", done["pdfUrl"])
	assert.Equal(t, "/document/"+id+".docx", done["docxUrl"])
}

func TestJobNotFound(t *testing.T) {
	f := newFixture(t, &fakePipeline{}, time.Second)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/jobs/nope", "u1", "").Code)
}

func TestJobSocketStreamsUntilDone(t *testing.T) {
	fake := &fakePipeline{release: make(chan struct{})}
	f := newFixture(t, fake, 10*time.Millisecond)
	id := f.generate(t, "u1")

	rec := f.do(t, http.MethodPost, "/api/download", "u1", `{"itineraryId":"`+id+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decode[map[string]string](t, rec)["jobId"]

	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/jobs/" + jobID + "?token=" + f.token(t, "u1")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first jobView
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, jobID, first.JobID)
	assert.False(t, first.State.Terminal())

	close(fake.release)

	var last jobView
	for {
		var v jobView
		if err := conn.ReadJSON(&v); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			break
		}
		last = v
	}
	assert.Equal(t, jobs.StateDone, last.State)
	assert.Equal(t, "/document/"+id+".pdf", last.PDFURL)
}

// readUntilClosed collects status frames until the server closes the socket.
func readUntilClosed(t *testing.T, conn *websocket.Conn) []jobView {
	t.Helper()
	var views []jobView
	for {
		var v jobView
		if err := conn.ReadJSON(&v); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			return views
		}
		views = append(views, v)
	}
}

func (f *fixture) dialJob(t *testing.T, jobID, userID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/jobs/" + jobID + "?token=" + f.token(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestJobSocketFollowsJobRunByAnotherInstance(t *testing.T) {
	f := newFixture(t, &fakePipeline{}, time.Second)
	id := f.generate(t, "u1")

	// Both instances share one status store; only the worker runs the job.
	statuses := jobs.NewMemoryStatusStore()
	fake := &fakePipeline{release: make(chan struct{})}
	worker := jobs.NewRunner(fake, statuses, 1, 4)
	worker.Start()
	t.Cleanup(func() { _ = worker.Shutdown(context.Background()) })
	f.h.Jobs = jobs.NewRunner(&fakePipeline{}, statuses, 1, 4)
	f.h.StatusPoll = 20 * time.Millisecond

	job, err := worker.Submit(context.Background(), id, "u1")
	require.NoError(t, err)

	conn := f.dialJob(t, job.JobID, "u1")
	var first jobView
	require.NoError(t, conn.ReadJSON(&first))
	assert.False(t, first.State.Terminal())

	close(fake.release)

	views := readUntilClosed(t, conn)
	require.NotEmpty(t, views)
	last := views[len(views)-1]
	assert.Equal(t, jobs.StateDone, last.State)
	assert.Equal(t, "/document/"+id+".pdf", last.PDFURL)
}

// scriptedQueue answers status reads from a fixed script and hands out
// subscriptions that are already closed, as the runner does for a
// subscriber that fell behind.
type scriptedQueue struct {
	mu     sync.Mutex
	script []jobs.Status
	reads  int
}

func (q *scriptedQueue) Submit(context.Context, string, string) (*jobs.Handle, error) {
	return nil, apperr.Unavailable("test", "not used")
}

func (q *scriptedQueue) Status(context.Context, string) (jobs.Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.script[min(q.reads, len(q.script)-1)]
	q.reads++
	return st, nil
}

func (q *scriptedQueue) Subscribe(string) (<-chan jobs.Status, func()) {
	ch := make(chan jobs.Status)
	close(ch)
	return ch, func() {}
}

func TestJobSocketOutlivesDroppedSubscription(t *testing.T) {
	f := newFixture(t, &fakePipeline{}, time.Second)
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	running := jobs.Status{JobID: "j1", ItineraryID: "it-1", UserID: "u1", State: jobs.StateRunning, Stage: "rendering", UpdatedAt: started}
	done := running
	done.State, done.Stage, done.PDF = jobs.StateDone, "done", "it-1.pdf"
	done.UpdatedAt = started.Add(time.Second)

	f.h.Jobs = &scriptedQueue{script: []jobs.Status{running, running, running, done}}
	f.h.StatusPoll = 20 * time.Millisecond

	views := readUntilClosed(t, f.dialJob(t, "j1", "u1"))
	require.Len(t, views, 2)
	assert.Equal(t, jobs.StateRunning, views[0].State)
	assert.Equal(t, jobs.StateDone, views[1].State)
	assert.Equal(t, "/document/it-1.pdf", views[1].PDFURL)
}

func TestJobSocketRejectsOtherUser(t *testing.T) {
	f := newFixture(t, &fakePipeline{}, time.Second)
	id := f.generate(t, "u1")
	rec := f.do(t, http.MethodPost, "/api/download", "u1", `{"itineraryId":"`+id+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	jobID := decode[map[string]string](t, rec)["jobId"]

	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/jobs/" + jobID + "?token=" + f.token(t, "u2")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDocument(t *testing.T) {
	f := newFixture(t, &fakePipeline{}, time.Second)
	require.NoError(t, os.WriteFile(filepath.Join(f.h.OutputDir, "it-1.pdf"), []byte("%PDF-1.4 test"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.h.OutputDir, "notes.txt"), []byte("x"), 0o644))

	rec := f.do(t, http.MethodGet, "/document/it-1.pdf", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="it-1.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4 test", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/document/it-2.docx", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/document/notes.txt", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/document/it%201.pdf", "", "").Code)
}
