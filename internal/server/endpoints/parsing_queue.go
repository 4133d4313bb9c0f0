package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cuentosapp/cuentos-server/internal/api"
	"github.com/cuentosapp/cuentos-server/internal/svcctx"
)

// ProcessQueueResponse reports how many pending jobs were dispatched.
type ProcessQueueResponse struct {
	Dispatched int `json:"dispatched"`
}

// ProcessQueueEndpoint handles POST /api/parsing/process-queue. It
// sweeps pending jobs onto the worker pool, skipping sources that
// already have a running job. The server runs the same sweep at
// startup to recover jobs left pending by a previous shutdown.
type ProcessQueueEndpoint struct{}

var _ api.Endpoint = (*ProcessQueueEndpoint)(nil)

func (e *ProcessQueueEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/parsing/process-queue", e.handler
}

func (e *ProcessQueueEndpoint) RequiresInit() bool { return true }

func (e *ProcessQueueEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	proc := svcctx.ProcessorFrom(r.Context())
	if proc == nil {
		writeError(w, http.StatusServiceUnavailable, CodeInternal, "processor not initialized")
		return
	}

	dispatched, err := proc.ProcessQueue(r.Context())
	if err != nil {
		writeProcessorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ProcessQueueResponse{Dispatched: dispatched})
}

func (e *ProcessQueueEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "process-queue",
		Short: "Dispatch pending jobs to the worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ProcessQueueResponse
			if err := client.Post(cmd.Context(), "/api/parsing/process-queue", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
