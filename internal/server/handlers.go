package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"dedup/internal/domain"
)

type pageData struct {
	Files   []string
	Success string
	Warning string
	Error   string
}

type documentRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type matchRequest struct {
	Text string `json:"text"`
}

type idsResponse struct {
	IDs []string `json:"ids"`
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	data.Files = s.uploads.Inventory(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.page.Execute(w, data); err != nil {
		s.logger.Error().Err(err).Msg("failed to render page")
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, pageData{})
}

// multipartOverhead leaves room for form boundaries and headers around the file.
const multipartOverhead = 64 << 10

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	tooLarge := pageData{Error: fmt.Sprintf("File exceeds the %d byte upload limit.", s.maxBytes)}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.render(w, r, http.StatusRequestEntityTooLarge, tooLarge)
			return
		}
		s.render(w, r, http.StatusBadRequest, pageData{Error: "Choose a file to upload."})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, s.maxBytes+1))
	if err != nil {
		s.render(w, r, http.StatusBadRequest, pageData{Error: "Failed to read uploaded file."})
		return
	}
	if int64(len(content)) > s.maxBytes {
		s.render(w, r, http.StatusRequestEntityTooLarge, tooLarge)
		return
	}

	name := filepath.Base(header.Filename)
	res, err := s.uploads.Upload(r.Context(), name, content)
	if err != nil {
		status, msg := s.uploadError(err)
		s.render(w, r, status, pageData{Error: msg})
		return
	}

	switch res.Status {
	case domain.UploadDuplicate:
		s.render(w, r, http.StatusOK, pageData{
			Warning: "This file is identical to existing files in the database: " + strings.Join(res.Duplicates, ", "),
		})
	default:
		s.render(w, r, http.StatusOK, pageData{
			Success: fmt.Sprintf("File '%s' uploaded and stored in the database.", res.ID),
		})
	}
}

// uploadError maps workflow errors to a status and user-facing message.
func (s *Server) uploadError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnsupportedType),
		errors.Is(err, domain.ErrInvalidEncoding),
		errors.Is(err, domain.ErrEmptyID):
		return http.StatusBadRequest, err.Error()
	default:
		s.logger.Error().Err(err).Msg("upload failed")
		return http.StatusInternalServerError, "Upload failed: the database is unavailable."
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, idsResponse{IDs: s.uploads.Inventory(r.Context())})
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.uploads.Upload(r.Context(), req.ID, []byte(req.Text))
	if err != nil {
		status, msg := s.uploadError(err)
		writeError(w, status, msg)
		return
	}

	status := http.StatusCreated
	if res.Status == domain.UploadDuplicate {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, ok, err := s.uploads.Document(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Str("id", id).Msg("document lookup failed")
		writeError(w, http.StatusInternalServerError, "document lookup failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("document %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ids, err := s.uploads.Matches(r.Context(), req.Text)
	if err != nil {
		s.logger.Error().Err(err).Msg("match query failed")
		writeError(w, http.StatusInternalServerError, "match query failed")
		return
	}
	writeJSON(w, http.StatusOK, idsResponse{IDs: ids})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
