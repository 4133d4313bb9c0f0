package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/cuentosapp/cuentos-server/internal/config"
	"github.com/cuentosapp/cuentos-server/internal/defra"
	"github.com/cuentosapp/cuentos-server/internal/home"
	"github.com/cuentosapp/cuentos-server/internal/server/endpoints"
	"github.com/cuentosapp/cuentos-server/internal/store"
	"github.com/cuentosapp/cuentos-server/internal/testutil"
)

// startTestServer brings up a full server against a dedicated DefraDB
// container and returns its base URL.
func startTestServer(t *testing.T) (string, *testutil.StartServer) {
	t.Helper()

	cfg := testutil.NewServerConfig(t)

	if err := os.WriteFile(cfg.ConfigFile, []byte("defaults:\n  max_workers: 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	h, err := home.New(cfg.HomePath)
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}

	cm, err := config.NewManager(cfg.ConfigFile)
	if err != nil {
		t.Fatalf("config.NewManager: %v", err)
	}

	srv, err := New(Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		Home:          h,
		ConfigManager: cm,
		Defra: defra.DockerConfig{
			ContainerName: cfg.DefraConfig.ContainerName,
			HostPort:      cfg.DefraConfig.HostPort,
			Labels:        cfg.DefraConfig.Labels,
		},
		Logger: cfg.Logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Start(ctx)
	}()

	starter := &testutil.StartServer{Cancel: cancel, Done: done}
	t.Cleanup(starter.Stop)

	if err := testutil.WaitForServer(cfg.URL(), 90*time.Second); err != nil {
		t.Fatalf("server did not become ready: %v", err)
	}
	return cfg.URL(), starter
}

func TestServer_ContextCancellation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	url, starter := startTestServer(t)

	resp, err := testutil.GetStatus(url)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if resp.Defra.Health != "healthy" {
		t.Fatalf("defra health = %q", resp.Defra.Health)
	}

	starter.Cancel()
	if err := testutil.WaitForShutdown(starter.Done, 60*time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	// Done is drained; keep the cleanup Stop from blocking on it.
	starter.Done = nil
}

func TestServer_ManuscriptWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	url, _ := startTestServer(t)
	client := testutil.HTTPClient()

	manuscript := `Capítulo 1

Había una vez un bosque encantado donde vivía una niña curiosa.

Capítulo 2

Un día la niña encontró un zorro dormido junto al río.
`

	// Upload with auto_parse
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "bosque.txt")
	fw.Write([]byte(manuscript))
	mw.WriteField("title", "El Bosque")
	mw.WriteField("auto_parse", "true")
	mw.Close()

	resp, err := client.Post(url+"/api/sources/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload returned %d: %s", resp.StatusCode, body)
	}

	var up endpoints.UploadSourceResponse
	if err := json.Unmarshal(body, &up); err != nil {
		t.Fatalf("decode upload: %v", err)
	}

	// Poll until the parsing job lands
	var job endpoints.JobResponse
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		r, err := client.Get(url + "/api/parsing/status/" + up.JobID)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		err = json.NewDecoder(r.Body).Decode(&job)
		r.Body.Close()
		if err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if job.Status == store.JobStatusCompleted || job.Status == store.JobStatusFailed {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if job.Status != store.JobStatusCompleted {
		t.Fatalf("parsing job status = %q (%s)", job.Status, job.ErrorMessage)
	}

	// Materialize chapters
	r, err := client.Post(fmt.Sprintf("%s/api/chapters/create/%s", url, up.BookID), "application/json", nil)
	if err != nil {
		t.Fatalf("chapters create: %v", err)
	}
	var created endpoints.CreateChaptersResponse
	err = json.NewDecoder(r.Body).Decode(&created)
	r.Body.Close()
	if err != nil {
		t.Fatalf("decode chapters: %v", err)
	}
	if len(created.Chapters) != 2 {
		t.Fatalf("chapters = %d, want 2", len(created.Chapters))
	}
}
