package orchestrators

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/mimetype"

	domain "gradedesk/internal/domain/submission"
)

// MaxSheetBytes caps a single uploaded sheet image.
const MaxSheetBytes = 8 << 20

// Ingestion errors surfaced to the caller.
var (
	ErrNoImageInput   = errors.New("no image files in input")
	ErrNothingDecoded = errors.New("none of the images could be read")
)

// SheetInput is one uploaded or pasted file, opened lazily so decoding can
// run concurrently.
type SheetInput struct {
	Name         string
	DeclaredType string // content type claimed by the client, may be empty
	Open         func() (io.ReadCloser, error)
}

// SheetWorkspace is the submission collection ingestion appends to.
type SheetWorkspace interface {
	AppendBatch(ctx context.Context, subs []domain.Submission)
}

// IngestSheetsInput carries the batch of files from one upload or paste.
type IngestSheetsInput struct {
	Sheets []SheetInput
}

// IngestSheetsResult carries the ids of the submissions that were created,
// in the order their decodes finished (the batch order).
type IngestSheetsResult struct {
	IDs []string
}

// IngestSheetsDeps holds dependencies for IngestSheets.
type IngestSheetsDeps struct {
	Workspace  SheetWorkspace
	GenerateID func() string
	Now        func() time.Time
}

// ExecuteIngestSheets reads the uploaded images concurrently, turns each
// readable one into an idle submission, and appends them to the workspace in
// one atomic batch. The batch is ordered by decode completion, not by input
// position: a quick sheet lands before a slow one, and the most recently
// decoded sheet ends up last (and selected). Files that fail to read are
// dropped, the rest of the batch still lands.
// PRE: at least one input whose declared type is image/* (or undeclared)
// POST: every appended submission is idle with a sniffed image payload
func ExecuteIngestSheets(ctx context.Context, input IngestSheetsInput, deps IngestSheetsDeps) (IngestSheetsResult, error) {
	var candidates []SheetInput
	for _, s := range input.Sheets {
		if s.DeclaredType == "" || strings.HasPrefix(s.DeclaredType, "image/") {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return IngestSheetsResult{}, ErrNoImageInput
	}

	now := deps.Now()

	// Ids are drawn here so GenerateID never runs concurrently.
	results := make(chan domain.Submission)
	var wg sync.WaitGroup
	for _, sheet := range candidates {
		id := deps.GenerateID()
		wg.Add(1)
		go func(sheet SheetInput, id string) {
			defer wg.Done()
			sub, err := decodeSheet(sheet, id, now)
			if err != nil {
				slog.Warn("ingest_event", "event", "sheet_dropped", "name", sheet.Name, "error", err.Error())
				return
			}
			results <- *sub
		}(sheet, id)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var subs []domain.Submission
	var ids []string
	for sub := range results {
		subs = append(subs, sub)
		ids = append(ids, sub.ID)
	}
	if len(subs) == 0 {
		return IngestSheetsResult{}, ErrNothingDecoded
	}

	deps.Workspace.AppendBatch(ctx, subs)
	slog.Info("ingest_event", "event", "sheets_ingested", "count", len(subs), "dropped", len(candidates)-len(subs))
	return IngestSheetsResult{IDs: ids}, nil
}

// decodeSheet reads one image and builds the idle submission for it.
func decodeSheet(sheet SheetInput, id string, now time.Time) (*domain.Submission, error) {
	rc, err := sheet.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxSheetBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}
	if len(data) > MaxSheetBytes {
		return nil, errors.New("image exceeds size limit")
	}

	// Trust the bytes, not the declared type.
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, errors.New("not an image: " + mime.String())
	}

	sub := domain.Submission{
		ID:           id,
		FileName:     domain.DeriveFileName(sheet.Name, now),
		ImagePayload: "data:" + mime.String() + ";base64," + base64.StdEncoding.EncodeToString(data),
		Status:       domain.StatusIdle,
		UploadedAt:   now,
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	return &sub, nil
}
