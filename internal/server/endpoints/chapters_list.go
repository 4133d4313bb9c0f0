package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cuentosapp/cuentos-server/internal/api"
	"github.com/cuentosapp/cuentos-server/internal/store"
	"github.com/cuentosapp/cuentos-server/internal/svcctx"
)

// ChapterListItem is one chapter in a list response. Content is
// omitted; the full document is large and fetched per chapter.
type ChapterListItem struct {
	ChapterID string `json:"chapter_id"`
	Index     int    `json:"index"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	WordCount int    `json:"word_count"`
	AudioPath string `json:"audio_path,omitempty"`
}

// ChapterListResponse wraps a book's chapters ordered by index.
type ChapterListResponse struct {
	BookID   string            `json:"book_id"`
	Chapters []ChapterListItem `json:"chapters"`
}

// ListChaptersEndpoint handles GET /api/chapters/{book_id}.
type ListChaptersEndpoint struct{}

var _ api.Endpoint = (*ListChaptersEndpoint)(nil)

func (e *ListChaptersEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/chapters/{book_id}", e.handler
}

func (e *ListChaptersEndpoint) RequiresInit() bool { return true }

func (e *ListChaptersEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("book_id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "book_id is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, CodeInternal, "store not initialized")
		return
	}

	chapters, err := st.ChaptersForBook(r.Context(), bookID)
	if err != nil {
		writeProcessorError(w, err)
		return
	}

	resp := ChapterListResponse{BookID: bookID, Chapters: make([]ChapterListItem, 0, len(chapters))}
	for _, ch := range chapters {
		resp.Chapters = append(resp.Chapters, ChapterListItem{
			ChapterID: ch.ID,
			Index:     ch.Index,
			Title:     ch.Title,
			Status:    ch.Status,
			WordCount: ch.WordCount,
			AudioPath: ch.AudioPath,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ListChaptersEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list <book-id>",
		Short: "List a book's chapters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ChapterListResponse
			if err := client.Get(cmd.Context(), "/api/chapters/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ApproveChapterResponse confirms a status change.
type ApproveChapterResponse struct {
	ChapterID string `json:"chapter_id"`
	Status    string `json:"status"`
}

// ApproveChapterEndpoint handles POST /api/chapters/approve/{chapter_id}.
// Only approved chapters are picked up by narration jobs.
type ApproveChapterEndpoint struct{}

var _ api.Endpoint = (*ApproveChapterEndpoint)(nil)

func (e *ApproveChapterEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/chapters/approve/{chapter_id}", e.handler
}

func (e *ApproveChapterEndpoint) RequiresInit() bool { return true }

func (e *ApproveChapterEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	chapterID := r.PathValue("chapter_id")
	if chapterID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "chapter_id is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, CodeInternal, "store not initialized")
		return
	}

	if _, err := st.GetChapter(r.Context(), chapterID); err != nil {
		writeProcessorError(w, err)
		return
	}
	if err := st.UpdateChapter(r.Context(), chapterID, map[string]any{
		"status": store.ChapterStatusApproved,
	}); err != nil {
		writeProcessorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ApproveChapterResponse{
		ChapterID: chapterID,
		Status:    store.ChapterStatusApproved,
	})
}

func (e *ApproveChapterEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <chapter-id>",
		Short: "Approve a chapter for narration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ApproveChapterResponse
			if err := client.Post(cmd.Context(), "/api/chapters/approve/"+args[0], nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
