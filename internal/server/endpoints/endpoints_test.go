package endpoints_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuentosapp/cuentos-server/internal/api"
	"github.com/cuentosapp/cuentos-server/internal/home"
	"github.com/cuentosapp/cuentos-server/internal/processor"
	"github.com/cuentosapp/cuentos-server/internal/providers"
	"github.com/cuentosapp/cuentos-server/internal/server/endpoints"
	"github.com/cuentosapp/cuentos-server/internal/store"
	"github.com/cuentosapp/cuentos-server/internal/svcctx"
)

const testManuscript = `Capítulo 1

Había una vez un bosque encantado donde vivía una niña muy curiosa.
Cada mañana salía de su casa con una cesta llena de pan.

Capítulo 2

Un día la niña encontró un zorro dormido junto al río y decidió
esperar en silencio hasta que despertara.
`

type testEnv struct {
	srv   *httptest.Server
	store *store.MemoryStore
	proc  *processor.Processor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	homeDir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}
	if err := homeDir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}

	proc, err := processor.New(processor.Config{
		Store:    st,
		Logger:   logger,
		Workers:  2,
		AudioDir: homeDir.AudioDir(),
		TTS:      providers.NewMockTTS(),
		ASR:      providers.NewMockASR(),
		Prober:   processor.StubProber{Duration: 2 * time.Second},
	})
	if err != nil {
		t.Fatalf("processor.New: %v", err)
	}

	services := &svcctx.Services{
		Store:     st,
		Processor: proc,
		Logger:    logger,
		Home:      homeDir,
	}

	registry := api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{}) {
		registry.Register(ep)
	}
	mux := http.NewServeMux()
	registry.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc { return next })

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r.WithContext(svcctx.WithServices(r.Context(), services)))
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Cleanup(proc.Wait)

	return &testEnv{srv: srv, store: st, proc: proc}
}

func (e *testEnv) upload(t *testing.T, filename string, fields map[string]string) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte(testManuscript)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	resp, err := http.Post(e.srv.URL+"/api/sources/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, body
}

func (e *testEnv) post(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Post(e.srv.URL+path, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

// waitForJob polls the status endpoint until the job reaches a
// terminal state.
func (e *testEnv) waitForJob(t *testing.T, jobID string) endpoints.JobResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var job endpoints.JobResponse
		if code := e.get(t, "/api/parsing/status/"+jobID, &job); code != http.StatusOK {
			t.Fatalf("status returned %d", code)
		}
		if job.Status == store.JobStatusCompleted || job.Status == store.JobStatusFailed {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", jobID)
	return endpoints.JobResponse{}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	var resp endpoints.HealthResponse
	if code := env.get(t, "/health", &resp); code != http.StatusOK {
		t.Fatalf("health returned %d", code)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestUploadAndParse(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.upload(t, "bosque.txt", map[string]string{
		"title":      "El Bosque",
		"auto_parse": "true",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload returned %d: %s", resp.StatusCode, body)
	}

	var up endpoints.UploadSourceResponse
	if err := json.Unmarshal(body, &up); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if up.BookID == "" || up.BookSourceID == "" {
		t.Fatalf("missing identifiers in %+v", up)
	}
	if up.JobID == "" {
		t.Fatal("auto_parse did not return a job ID")
	}

	job := env.waitForJob(t, up.JobID)
	if job.Status != store.JobStatusCompleted {
		t.Fatalf("job status = %q (%s)", job.Status, job.ErrorMessage)
	}
	if job.Progress != 100 {
		t.Errorf("progress = %d, want 100", job.Progress)
	}

	var result processor.ParsingResult
	if err := json.Unmarshal([]byte(job.ResultJSON), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.ChapterCount != 2 {
		t.Errorf("chapter count = %d, want 2", result.ChapterCount)
	}
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.upload(t, "bosque.exe", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("upload returned %d: %s", resp.StatusCode, body)
	}

	var errResp endpoints.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errResp.Code != endpoints.CodeBadRequest {
		t.Errorf("code = %q, want %q", errResp.Code, endpoints.CodeBadRequest)
	}
}

func TestStartParsingUnknownSource(t *testing.T) {
	env := newTestEnv(t)

	var errResp endpoints.ErrorResponse
	if code := env.post(t, "/api/parsing/start/nope", &errResp); code != http.StatusNotFound {
		t.Fatalf("start returned %d", code)
	}
	if errResp.Code != endpoints.CodeSourceNotFound {
		t.Errorf("code = %q, want %q", errResp.Code, endpoints.CodeSourceNotFound)
	}
}

func TestCancelCompletedJob(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.upload(t, "bosque.txt", map[string]string{"auto_parse": "true"})
	var up endpoints.UploadSourceResponse
	json.Unmarshal(body, &up)
	env.waitForJob(t, up.JobID)

	var errResp endpoints.ErrorResponse
	if code := env.post(t, "/api/parsing/cancel/"+up.JobID, &errResp); code != http.StatusBadRequest {
		t.Fatalf("cancel returned %d", code)
	}
	if errResp.Code != endpoints.CodeJobCompleted {
		t.Errorf("code = %q, want %q", errResp.Code, endpoints.CodeJobCompleted)
	}
}

func TestJobListForSource(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.upload(t, "bosque.txt", map[string]string{"auto_parse": "true"})
	var up endpoints.UploadSourceResponse
	json.Unmarshal(body, &up)
	env.waitForJob(t, up.JobID)

	var list endpoints.JobListResponse
	if code := env.get(t, "/api/parsing/jobs/"+up.BookSourceID, &list); code != http.StatusOK {
		t.Fatalf("jobs returned %d", code)
	}
	if len(list.Jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(list.Jobs))
	}
	if list.Jobs[0].JobID != up.JobID {
		t.Errorf("job ID = %q, want %q", list.Jobs[0].JobID, up.JobID)
	}
}

func TestPreviewSource(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.upload(t, "bosque.txt", nil)
	var up endpoints.UploadSourceResponse
	json.Unmarshal(body, &up)

	var result processor.ParsingResult
	if code := env.get(t, "/api/parsing/preview/"+up.BookSourceID, &result); code != http.StatusOK {
		t.Fatalf("preview returned %d", code)
	}
	if result.ChapterCount != 2 {
		t.Errorf("chapter count = %d, want 2", result.ChapterCount)
	}
	for _, ch := range result.Chapters {
		if ch.Content != nil {
			t.Error("preview should not include chapter content")
		}
	}
}

func TestProcessQueue(t *testing.T) {
	env := newTestEnv(t)

	// Upload without auto_parse, then create the job and sweep.
	_, body := env.upload(t, "bosque.txt", nil)
	var up endpoints.UploadSourceResponse
	json.Unmarshal(body, &up)

	job, err := env.proc.CreateParsingJob(context.Background(), up.BookSourceID)
	if err != nil {
		t.Fatalf("CreateParsingJob: %v", err)
	}

	var swept endpoints.ProcessQueueResponse
	if code := env.post(t, "/api/parsing/process-queue", &swept); code != http.StatusOK {
		t.Fatalf("process-queue returned %d", code)
	}
	if swept.Dispatched != 1 {
		t.Errorf("dispatched = %d, want 1", swept.Dispatched)
	}

	done := env.waitForJob(t, job.ID)
	if done.Status != store.JobStatusCompleted {
		t.Errorf("job status = %q", done.Status)
	}
}

func TestChapterAndNarrationFlow(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.upload(t, "bosque.txt", map[string]string{"auto_parse": "true"})
	var up endpoints.UploadSourceResponse
	json.Unmarshal(body, &up)
	env.waitForJob(t, up.JobID)

	var created endpoints.CreateChaptersResponse
	if code := env.post(t, "/api/chapters/create/"+up.BookID, &created); code != http.StatusCreated {
		t.Fatalf("chapters create returned %d", code)
	}
	if len(created.Chapters) != 2 {
		t.Fatalf("chapters = %d, want 2", len(created.Chapters))
	}

	// A second materialization must be rejected.
	var errResp endpoints.ErrorResponse
	if code := env.post(t, "/api/chapters/create/"+up.BookID, &errResp); code != http.StatusConflict {
		t.Fatalf("second create returned %d", code)
	}
	if errResp.Code != endpoints.CodeChaptersExist {
		t.Errorf("code = %q, want %q", errResp.Code, endpoints.CodeChaptersExist)
	}

	// Narration needs approved chapters.
	if code := env.post(t, "/api/tts/start/"+up.BookID, &errResp); code != http.StatusBadRequest {
		t.Fatalf("tts without approval returned %d", code)
	}
	if errResp.Code != endpoints.CodeNoApproved {
		t.Errorf("code = %q, want %q", errResp.Code, endpoints.CodeNoApproved)
	}

	for _, ch := range created.Chapters {
		var approved endpoints.ApproveChapterResponse
		if code := env.post(t, "/api/chapters/approve/"+ch.ID, &approved); code != http.StatusOK {
			t.Fatalf("approve returned %d", code)
		}
		if approved.Status != store.ChapterStatusApproved {
			t.Errorf("status = %q", approved.Status)
		}
	}

	var ttsJob endpoints.JobResponse
	if code := env.post(t, "/api/tts/start/"+up.BookID, &ttsJob); code != http.StatusCreated {
		t.Fatalf("tts start returned %d", code)
	}
	done := env.waitForJob(t, ttsJob.JobID)
	if done.Status != store.JobStatusCompleted {
		t.Fatalf("tts job status = %q (%s)", done.Status, done.ErrorMessage)
	}

	var chapters endpoints.ChapterListResponse
	if code := env.get(t, "/api/chapters/"+up.BookID, &chapters); code != http.StatusOK {
		t.Fatalf("chapters list returned %d", code)
	}
	for _, ch := range chapters.Chapters {
		if ch.Status != store.ChapterStatusNarrated {
			t.Errorf("chapter %d status = %q, want narrated", ch.Index, ch.Status)
		}
		if ch.AudioPath == "" {
			t.Errorf("chapter %d has no audio path", ch.Index)
		}
	}
}
