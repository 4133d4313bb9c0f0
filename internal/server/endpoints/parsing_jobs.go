package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cuentosapp/cuentos-server/internal/api"
	"github.com/cuentosapp/cuentos-server/internal/svcctx"
)

// JobListResponse wraps a source's job history.
type JobListResponse struct {
	BookSourceID string        `json:"book_source_id"`
	Jobs         []JobResponse `json:"jobs"`
}

// ListJobsEndpoint handles GET /api/parsing/jobs/{book_source_id}.
// Jobs are returned oldest first.
type ListJobsEndpoint struct{}

var _ api.Endpoint = (*ListJobsEndpoint)(nil)

func (e *ListJobsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/parsing/jobs/{book_source_id}", e.handler
}

func (e *ListJobsEndpoint) RequiresInit() bool { return true }

func (e *ListJobsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("book_source_id")
	if sourceID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "book_source_id is required")
		return
	}

	proc := svcctx.ProcessorFrom(r.Context())
	if proc == nil {
		writeError(w, http.StatusServiceUnavailable, CodeInternal, "processor not initialized")
		return
	}

	jobs, err := proc.JobsForSource(r.Context(), sourceID)
	if err != nil {
		writeProcessorError(w, err)
		return
	}

	resp := JobListResponse{BookSourceID: sourceID, Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, jobResponse(j))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ListJobsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs <book-source-id>",
		Short: "List a source's jobs, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp JobListResponse
			if err := client.Get(cmd.Context(), "/api/parsing/jobs/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
