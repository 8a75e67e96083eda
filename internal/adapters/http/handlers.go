package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"gradedesk/internal/application/listutil"
	"gradedesk/internal/application/orchestrators"
	"gradedesk/internal/application/projections"
	domain "gradedesk/internal/domain/submission"
)

// timeNow is a variable for testability.
var timeNow = time.Now

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set), preventing XSS.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// generateID creates a new UUID string.
func generateID() string {
	return uuid.New().String()
}

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/api/status", handleStatus)
	mux.HandleFunc("/api/workspace", handleWorkspace)
	mux.HandleFunc("/api/history", handleHistory)
	mux.HandleFunc("/api/sheets", handleUploadSheets)
	mux.HandleFunc("/api/sheets/paste", handlePasteSheets)
	mux.HandleFunc("/api/submissions/grade-all", handleGradeAll)
	mux.HandleFunc("/api/submissions/", handleSubmission)
	mux.HandleFunc("/api/reset", handleReset)
}

// handleHealthz handles GET /healthz.
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus handles GET /api/status with timing aggregates.
func handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if perfCollector == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusOK, perfCollector.Summarize(10))
}

// handleWorkspace handles GET /api/workspace.
// Returns the full collection, selection, and the grade-all flag.
func handleWorkspace(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	view, err := projections.QueryGetWorkspace(r.Context(), projections.GetWorkspaceDeps{Workspace: app.Workspace})
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleHistory handles GET /api/history?q=&page=&per_page=.
// Only settled submissions show up, newest first.
func handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	result, err := projections.QueryGetHistory(r.Context(), projections.GetHistoryQuery{
		Search: q.Get("q"),
		Page:   listutil.ParsePageParams(q),
	}, projections.GetHistoryDeps{Workspace: app.Workspace})
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleUploadSheets handles POST /api/sheets (multipart upload).
// Non-image files are skipped; unreadable images are dropped while the rest
// of the batch still lands.
func handleUploadSheets(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	// Map iteration order is random; sort the field names so the feed
	// order into ingestion is stable.
	names := make([]string, 0, len(r.MultipartForm.File))
	for name := range r.MultipartForm.File {
		names = append(names, name)
	}
	sort.Strings(names)

	var sheets []orchestrators.SheetInput
	for _, name := range names {
		for _, fh := range r.MultipartForm.File[name] {
			fh := fh
			declared := fh.Header.Get("Content-Type")
			if declared == "application/octet-stream" {
				// Generic part type says nothing; sniffing decides.
				declared = ""
			}
			sheets = append(sheets, orchestrators.SheetInput{
				Name:         fh.Filename,
				DeclaredType: declared,
				Open: func() (io.ReadCloser, error) {
					return fh.Open()
				},
			})
		}
	}

	ingestSheets(w, r, sheets)
}

// pasteItem is one clipboard image in a paste request. Data is either a data
// URI or plain base64.
type pasteItem struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"`
}

// handlePasteSheets handles POST /api/sheets/paste (JSON clipboard images).
// Pasted images arrive without a usable file name; they get a time-derived one.
func handlePasteSheets(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var input struct {
		Items []pasteItem `json:"items"`
	}
	if err := strictDecode(r, &input); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	var sheets []orchestrators.SheetInput
	for _, item := range input.Items {
		item := item
		name := item.Name
		if name == "" {
			name = domain.PlaceholderName
		}
		sheets = append(sheets, orchestrators.SheetInput{
			Name:         name,
			DeclaredType: item.Type,
			Open: func() (io.ReadCloser, error) {
				data, err := decodePasteData(item.Data)
				if err != nil {
					return nil, err
				}
				return io.NopCloser(bytes.NewReader(data)), nil
			},
		})
	}

	ingestSheets(w, r, sheets)
}

// ingestSheets runs the ingestion orchestrator and writes the response.
func ingestSheets(w http.ResponseWriter, r *http.Request, sheets []orchestrators.SheetInput) {
	result, err := orchestrators.ExecuteIngestSheets(r.Context(), orchestrators.IngestSheetsInput{Sheets: sheets}, orchestrators.IngestSheetsDeps{
		Workspace:  app.Workspace,
		GenerateID: generateID,
		Now:        timeNow,
	})
	switch {
	case errors.Is(err, orchestrators.ErrNoImageInput):
		http.Error(w, "no image files in input", http.StatusBadRequest)
		return
	case errors.Is(err, orchestrators.ErrNothingDecoded):
		http.Error(w, "none of the images could be read", http.StatusUnprocessableEntity)
		return
	case err != nil:
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ids": result.IDs})
}

// handleGradeAll handles POST /api/submissions/grade-all.
// The batch runs in the background, strictly one sheet at a time; clients
// watch progress through the workspace view.
func handleGradeAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ids, err := orchestrators.ClaimGradeAllBatch(app.Workspace)
	if errors.Is(err, orchestrators.ErrBatchInProgress) {
		http.Error(w, "a grade-all batch is already running", http.StatusConflict)
		return
	}

	go func() {
		// The batch outlives the request.
		err := orchestrators.RunGradeAllBatch(context.Background(), ids, orchestrators.GradeAllPendingDeps{
			Workspace: app.Workspace,
			Grader:    app.Grader,
			Language:  app.Language,
		})
		if err != nil {
			slog.Error("grading_event", "event", "batch_error", "error", err.Error())
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"eligible": len(ids)})
}

// handleSubmission routes /api/submissions/{id} and its sub-actions.
func handleSubmission(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/submissions/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		switch r.Method {
		case "GET":
			handleGetSubmission(w, r, id)
		case "DELETE":
			handleDeleteSubmission(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "grade":
		handleGradeSubmission(w, r, id)
	case "rotate":
		handleRotateSubmission(w, r, id)
	case "select":
		handleSelectSubmission(w, r, id)
	case "solution":
		handleSubmissionSolution(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// handleGetSubmission handles GET /api/submissions/{id}.
func handleGetSubmission(w http.ResponseWriter, r *http.Request, id string) {
	sub, ok := app.Workspace.Get(id)
	if !ok {
		http.Error(w, "submission not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handleDeleteSubmission handles DELETE /api/submissions/{id}.
func handleDeleteSubmission(w http.ResponseWriter, r *http.Request, id string) {
	err := orchestrators.ExecuteDeleteSubmission(r.Context(), id, orchestrators.ManageDeps{Workspace: app.Workspace})
	if errors.Is(err, orchestrators.ErrSubmissionGone) {
		http.Error(w, "submission not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGradeSubmission handles POST /api/submissions/{id}/grade.
// The call is synchronous: the response carries the settled submission,
// whether grading succeeded or failed.
func handleGradeSubmission(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, err := orchestrators.ExecuteGradeSubmission(r.Context(), orchestrators.GradeSubmissionInput{ID: id}, orchestrators.GradeSubmissionDeps{
		Workspace: app.Workspace,
		Grader:    app.Grader,
		Language:  app.Language,
	})
	if errors.Is(err, orchestrators.ErrSubmissionGone) {
		http.Error(w, "submission not found", http.StatusNotFound)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	sub, ok := app.Workspace.Get(id)
	if !ok {
		// Deleted while grading was in flight.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handleRotateSubmission handles POST /api/submissions/{id}/rotate.
func handleRotateSubmission(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	err := orchestrators.ExecuteRotateSubmission(r.Context(), id, orchestrators.ManageDeps{Workspace: app.Workspace})
	if errors.Is(err, orchestrators.ErrSubmissionGone) {
		http.Error(w, "submission not found", http.StatusNotFound)
		return
	}
	sub, ok := app.Workspace.Get(id)
	if !ok {
		// Deleted between the rotate and the read-back.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handleSelectSubmission handles POST /api/submissions/{id}/select.
func handleSelectSubmission(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	err := orchestrators.ExecuteSelectSubmission(r.Context(), id, orchestrators.ManageDeps{Workspace: app.Workspace})
	if errors.Is(err, orchestrators.ErrSubmissionGone) {
		http.Error(w, "submission not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmissionSolution handles GET /api/submissions/{id}/solution.
// Renders the model solution markdown to HTML. Perfect sheets have no
// correction to show.
func handleSubmissionSolution(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sub, ok := app.Workspace.Get(id)
	if !ok {
		http.Error(w, "submission not found", http.StatusNotFound)
		return
	}
	if sub.Result == nil {
		http.Error(w, "submission has no grading result", http.StatusConflict)
		return
	}
	if sub.Result.IsPerfect() {
		writeJSON(w, http.StatusOK, map[string]string{"html": ""})
		return
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(sub.Result.CorrectSolution), &buf); err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"html": buf.String()})
}

// handleReset handles POST /api/reset?confirm=true.
// Destroys the whole collection and clears durable storage.
func handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	err := orchestrators.ExecuteResetWorkspace(r.Context(), orchestrators.ResetWorkspaceInput{
		Confirm: r.URL.Query().Get("confirm") == "true",
	}, orchestrators.ManageDeps{Workspace: app.Workspace})
	if errors.Is(err, orchestrators.ErrResetNotConfirmed) {
		http.Error(w, "reset requires confirm=true", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodePasteData accepts a data URI or bare base64 string.
func decodePasteData(data string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		_, b64, found := strings.Cut(rest, ",")
		if !found {
			return nil, errors.New("malformed data URI")
		}
		data = b64
	}
	return base64.StdEncoding.DecodeString(data)
}
