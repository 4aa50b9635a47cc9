package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"ticketflow/pkg/ingest"
	"ticketflow/pkg/pipeline"
)

// UploadHandler accepts a CSV batch and runs it through the pipeline.
type UploadHandler struct {
	pipe *pipeline.Processor
}

// NewUploadHandler creates an UploadHandler.
func NewUploadHandler(p *pipeline.Processor) *UploadHandler {
	return &UploadHandler{pipe: p}
}

// Handle processes POST /api/upload. The multipart field "file" carries
// the CSV; ticket and manager rows may share one file.
func (h *UploadHandler) Handle(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, `Missing multipart field "file".`)
		return
	}
	defer func() { _ = file.Close() }()

	if !strings.HasSuffix(header.Filename, ".csv") {
		writeError(w, http.StatusBadRequest, "Only .csv files are accepted.")
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload.")
		return
	}

	tickets, err := ingest.ParseTickets(bytes.NewReader(content))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	managers, err := ingest.ParseManagers(bytes.NewReader(content))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(tickets) == 0 {
		writeError(w, http.StatusBadRequest, "No ticket rows found. Make sure the CSV has a 'Description' column.")
		return
	}

	summary, err := h.pipe.Process(r.Context(), tickets, managers)
	if err != nil {
		if errors.Is(err, pipeline.ErrBatchTooLarge) || errors.Is(err, pipeline.ErrEmptyBatch) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Batch processing failed", "file", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "Batch processing failed.")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
