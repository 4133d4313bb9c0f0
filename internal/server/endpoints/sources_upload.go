package endpoints

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuentosapp/cuentos-server/internal/api"
	"github.com/cuentosapp/cuentos-server/internal/store"
	"github.com/cuentosapp/cuentos-server/internal/svcctx"
)

// UploadSourceResponse is returned after a manuscript upload.
type UploadSourceResponse struct {
	BookID       string `json:"book_id"`
	BookSourceID string `json:"book_source_id"`
	Filename     string `json:"filename"`
	SizeBytes    int64  `json:"size_bytes"`
	JobID        string `json:"job_id,omitempty"`
}

// UploadSourceEndpoint handles POST /api/sources/upload with a
// multipart manuscript upload. It creates the Book record (unless
// book_id attaches the file to an existing book), stores the file
// under the home directory, and records a BookSource.
type UploadSourceEndpoint struct{}

var _ api.Endpoint = (*UploadSourceEndpoint)(nil)

func (e *UploadSourceEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/sources/upload", e.handler
}

func (e *UploadSourceEndpoint) RequiresInit() bool { return true }

func (e *UploadSourceEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 100 << 20 // 100MB
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	if !supportedManuscript(header.Filename) {
		writeError(w, http.StatusBadRequest, CodeBadRequest,
			fmt.Sprintf("unsupported manuscript format: %s", filepath.Ext(header.Filename)))
		return
	}

	st := svcctx.StoreFrom(r.Context())
	homeDir := svcctx.HomeFrom(r.Context())
	if st == nil || homeDir == nil {
		writeError(w, http.StatusServiceUnavailable, CodeInternal, "server not fully initialized")
		return
	}
	logger := svcctx.LoggerFrom(r.Context())

	bookID := r.FormValue("book_id")
	if bookID == "" {
		title := r.FormValue("title")
		if title == "" {
			title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
		}
		language := r.FormValue("language")
		if language == "" {
			language = "es"
		}
		bookID, err = st.CreateBook(r.Context(), &store.Book{Title: title, Language: language})
		if err != nil {
			writeError(w, http.StatusInternalServerError, CodeInternal, fmt.Sprintf("failed to create book: %v", err))
			return
		}
	} else if _, err := st.GetBook(r.Context(), bookID); err != nil {
		writeProcessorError(w, err)
		return
	}

	if err := homeDir.EnsureBookSourcesDir(bookID); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, fmt.Sprintf("failed to create source dir: %v", err))
		return
	}
	destPath := filepath.Join(homeDir.BookSourcesDir(bookID), filepath.Base(header.Filename))
	dst, err := os.Create(destPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, fmt.Sprintf("failed to create file: %v", err))
		return
	}
	size, err := io.Copy(dst, file)
	dst.Close()
	if err != nil {
		os.Remove(destPath)
		writeError(w, http.StatusInternalServerError, CodeInternal, fmt.Sprintf("failed to save file: %v", err))
		return
	}

	srcID, err := st.CreateBookSource(r.Context(), &store.BookSource{
		BookID:      bookID,
		Filename:    header.Filename,
		FilePath:    destPath,
		ContentType: header.Header.Get("Content-Type"),
		SizeBytes:   size,
		Status:      store.SourceStatusUploaded,
	})
	if err != nil {
		os.Remove(destPath)
		writeError(w, http.StatusInternalServerError, CodeInternal, fmt.Sprintf("failed to record source: %v", err))
		return
	}

	resp := UploadSourceResponse{
		BookID:       bookID,
		BookSourceID: srcID,
		Filename:     header.Filename,
		SizeBytes:    size,
	}

	// Kick off parsing in the same request when asked to.
	if r.FormValue("auto_parse") == "true" {
		proc := svcctx.ProcessorFrom(r.Context())
		if proc == nil {
			writeError(w, http.StatusServiceUnavailable, CodeInternal, "processor not initialized")
			return
		}
		job, err := proc.CreateParsingJob(r.Context(), srcID)
		if err != nil {
			writeProcessorError(w, err)
			return
		}
		proc.Dispatch(job.ID, job.Kind)
		resp.JobID = job.ID
		if logger != nil {
			logger.Info("auto-started parsing job", "job_id", job.ID, "book_source_id", srcID)
		}
	}

	writeJSON(w, http.StatusCreated, resp)
}

func supportedManuscript(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".markdown", ".pdf":
		return true
	}
	return false
}

func (e *UploadSourceEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title, language, bookID string
	var autoParse bool
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a manuscript file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			fields := map[string]string{}
			if title != "" {
				fields["title"] = title
			}
			if language != "" {
				fields["language"] = language
			}
			if bookID != "" {
				fields["book_id"] = bookID
			}
			if autoParse {
				fields["auto_parse"] = "true"
			}
			var resp UploadSourceResponse
			if err := client.Upload(cmd.Context(), "/api/sources/upload", args[0], fields, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "book title (defaults to the filename)")
	cmd.Flags().StringVar(&language, "language", "", "book language (default es)")
	cmd.Flags().StringVar(&bookID, "book", "", "attach to an existing book ID")
	cmd.Flags().BoolVar(&autoParse, "parse", false, "start a parsing job after upload")
	return cmd
}
