package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cuentosapp/cuentos-server/internal/api"
	"github.com/cuentosapp/cuentos-server/internal/svcctx"
)

// CancelResponse confirms a cancellation.
type CancelResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// CancelJobEndpoint handles POST /api/parsing/cancel/{job_id}.
// Pending and running jobs are marked failed; terminal jobs are rejected.
type CancelJobEndpoint struct{}

var _ api.Endpoint = (*CancelJobEndpoint)(nil)

func (e *CancelJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/parsing/cancel/{job_id}", e.handler
}

func (e *CancelJobEndpoint) RequiresInit() bool { return true }

func (e *CancelJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	if err := proc.CancelJob(r.Context(), jobID); err != nil {
		writeProcessorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CancelResponse{JobID: jobID, Status: "cancelled"})
}

func (e *CancelJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp CancelResponse
			if err := client.Post(cmd.Context(), "/api/parsing/cancel/"+args[0], nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
