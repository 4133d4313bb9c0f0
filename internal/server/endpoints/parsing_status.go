package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cuentosapp/cuentos-server/internal/api"
	"github.com/cuentosapp/cuentos-server/internal/svcctx"
)

// ParsingStatusEndpoint handles GET /api/parsing/status/{job_id}.
type ParsingStatusEndpoint struct{}

var _ api.Endpoint = (*ParsingStatusEndpoint)(nil)

func (e *ParsingStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/parsing/status/{job_id}", e.handler
}

func (e *ParsingStatusEndpoint) RequiresInit() bool { return true }

func (e *ParsingStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "job_id is required")
		return
	}

	proc := svcctx.ProcessorFrom(r.Context())
	if proc == nil {
		writeError(w, http.StatusServiceUnavailable, CodeInternal, "processor not initialized")
		return
	}

	job, err := proc.JobStatus(r.Context(), jobID)
	if err != nil {
		writeProcessorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobResponse(job))
}

func (e *ParsingStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Get the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp JobResponse
			if err := client.Get(cmd.Context(), "/api/parsing/status/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
