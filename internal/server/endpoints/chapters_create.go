package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cuentosapp/cuentos-server/internal/api"
	"github.com/cuentosapp/cuentos-server/internal/processor"
	"github.com/cuentosapp/cuentos-server/internal/svcctx"
)

// CreateChaptersResponse lists the chapters materialized for a book.
type CreateChaptersResponse struct {
	BookID   string                     `json:"book_id"`
	Chapters []processor.ChapterSummary `json:"chapters"`
}

// CreateChaptersEndpoint handles POST /api/chapters/create/{book_id}.
// It materializes the book's latest completed parsing result into
// draft Chapter records. A book that already has chapters is rejected.
type CreateChaptersEndpoint struct{}

var _ api.Endpoint = (*CreateChaptersEndpoint)(nil)

func (e *CreateChaptersEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/chapters/create/{book_id}", e.handler
}

func (e *CreateChaptersEndpoint) RequiresInit() bool { return true }

func (e *CreateChaptersEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("book_id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "book_id is required")
		return
	}

	proc := svcctx.ProcessorFrom(r.Context())
	if proc == nil {
		writeError(w, http.StatusServiceUnavailable, CodeInternal, "processor not initialized")
		return
	}

	// async=true runs materialization through the job surface instead.
	if r.URL.Query().Get("async") == "true" {
		job, err := proc.CreateChapterCreationJob(r.Context(), bookID)
		if err != nil {
			writeProcessorError(w, err)
			return
		}
		proc.Dispatch(job.ID, job.Kind)
		writeJSON(w, http.StatusAccepted, jobResponse(job))
		return
	}

	chapters, err := proc.CreateChaptersForBook(r.Context(), bookID)
	if err != nil {
		writeProcessorError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateChaptersResponse{BookID: bookID, Chapters: chapters})
}

func (e *CreateChaptersEndpoint) Command(getServerURL func() string) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "create <book-id>",
		Short: "Materialize chapters from the latest parsing result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/chapters/create/" + args[0]
			if async {
				path += "?async=true"
				var resp JobResponse
				if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
					return err
				}
				return api.Output(resp)
			}
			var resp CreateChaptersResponse
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "run materialization as a job")
	return cmd
}
