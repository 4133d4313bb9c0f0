package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cuentosapp/cuentos-server/internal/api"
	"github.com/cuentosapp/cuentos-server/internal/svcctx"
)

// StartParsingEndpoint handles POST /api/parsing/start/{book_source_id}.
// The job is recorded as pending and dispatched to the worker pool; the
// response returns immediately with the job ID for polling.
type StartParsingEndpoint struct{}

var _ api.Endpoint = (*StartParsingEndpoint)(nil)

func (e *StartParsingEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/parsing/start/{book_source_id}", e.handler
}

func (e *StartParsingEndpoint) RequiresInit() bool { return true }

func (e *StartParsingEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	job, err := proc.CreateParsingJob(r.Context(), sourceID)
	if err != nil {
		writeProcessorError(w, err)
		return
	}
	proc.Dispatch(job.ID, job.Kind)

	writeJSON(w, http.StatusCreated, jobResponse(job))
}

func (e *StartParsingEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "start <book-source-id>",
		Short: "Start a parsing job for a manuscript source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp JobResponse
			if err := client.Post(cmd.Context(), "/api/parsing/start/"+args[0], nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
