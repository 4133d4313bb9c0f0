package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cuentosapp/cuentos-server/internal/api"
	"github.com/cuentosapp/cuentos-server/internal/svcctx"
)

// StartTTSEndpoint handles POST /api/tts/start/{book_id}. It creates a
// narration job covering the book's approved chapters and dispatches
// it; poll with the parsing status endpoint.
type StartTTSEndpoint struct{}

var _ api.Endpoint = (*StartTTSEndpoint)(nil)

func (e *StartTTSEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/tts/start/{book_id}", e.handler
}

func (e *StartTTSEndpoint) RequiresInit() bool { return true }

func (e *StartTTSEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	job, err := proc.CreateTTSJob(r.Context(), bookID)
	if err != nil {
		writeProcessorError(w, err)
		return
	}
	proc.Dispatch(job.ID, job.Kind)

	writeJSON(w, http.StatusCreated, jobResponse(job))
}

func (e *StartTTSEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "start <book-id>",
		Short: "Start narration for a book's approved chapters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp JobResponse
			if err := client.Post(cmd.Context(), "/api/tts/start/"+args[0], nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
