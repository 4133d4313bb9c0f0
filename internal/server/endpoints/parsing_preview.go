package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cuentosapp/cuentos-server/internal/api"
	"github.com/cuentosapp/cuentos-server/internal/processor"
	"github.com/cuentosapp/cuentos-server/internal/svcctx"
)

// PreviewSourceEndpoint handles GET /api/parsing/preview/{book_source_id}.
// It parses the manuscript synchronously without creating a job or
// persisting anything, returning chapter summaries for review.
type PreviewSourceEndpoint struct{}

var _ api.Endpoint = (*PreviewSourceEndpoint)(nil)

func (e *PreviewSourceEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/parsing/preview/{book_source_id}", e.handler
}

func (e *PreviewSourceEndpoint) RequiresInit() bool { return true }

func (e *PreviewSourceEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	result, err := proc.PreviewSource(r.Context(), sourceID)
	if err != nil {
		writeProcessorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (e *PreviewSourceEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <book-source-id>",
		Short: "Parse a manuscript without persisting anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp processor.ParsingResult
			if err := client.Get(cmd.Context(), "/api/parsing/preview/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
