package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/teemow/bulkmail/internal/logging"
	"github.com/teemow/bulkmail/internal/mime"
	"github.com/teemow/bulkmail/internal/recipients"
)

type recipientsResponse struct {
	Recipients []recipients.Recipient `json:"recipients"`
}

type logsResponse struct {
	Logs []string `json:"logs"`
}

// handleSend sends one message built from a multipart or urlencoded form
// with fields to, name, subject, content, contentType and an optional image
// file.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := parseForm(r, s.maxUpload); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid form: %v", err))
		return
	}

	contentType, err := mime.ParseContentType(r.FormValue("contentType"))
	if err != nil {
		writeError(w, err)
		return
	}

	image, err := readFormFile(r, "image")
	if err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid image: %v", err))
		return
	}

	msg := mime.OutgoingMessage{
		To:          r.FormValue("to"),
		DisplayName: r.FormValue("name"),
		Subject:     r.FormValue("subject"),
		Body:        r.FormValue("content"),
		ContentType: contentType,
		InlineImage: image,
	}

	out, err := s.dispatcher.Send(r.Context(), msg)
	if err != nil {
		s.logger.Warn("send failed", logging.Recipient(msg.To), logging.Err(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Success", MessageID: out.MessageID})
}

// handleUpload parses the "csv" file of a multipart form into recipients.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid form: %v", err))
		return
	}

	f, _, err := r.FormFile("csv")
	if err != nil {
		writeBadRequest(w, "missing csv file")
		return
	}
	defer f.Close()

	list, err := recipients.Parse(f)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, recipientsResponse{Recipients: list})
}

// handleLogs lists the delivery log. An unreadable log is reported empty.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	lines, err := s.log.Lines(r.Context())
	if err != nil {
		s.logger.Warn("failed to read delivery log", logging.Err(err))
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, logsResponse{Logs: lines})
}

func parseForm(r *http.Request, maxMemory int64) error {
	err := r.ParseMultipartForm(maxMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

// readFormFile returns the named file's bytes, or nil when absent.
func readFormFile(r *http.Request, field string) ([]byte, error) {
	f, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}
