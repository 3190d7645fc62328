package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MimeLyc/tiered-sub-translator/internal/config"
	"github.com/MimeLyc/tiered-sub-translator/internal/record"
	"github.com/MimeLyc/tiered-sub-translator/internal/service"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.svc.Health(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"jobs": counts,
	})
}

type catalogResponse struct {
	Genres     []string `json:"genres"`
	Languages  []string `json:"languages"`
	AutoDetect string   `json:"auto_detect"`
	Tiers      []string `json:"tiers"`
	MinBatch   int      `json:"min_batch_size"`
	MaxBatch   int      `json:"max_batch_size"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalogResponse{
		Genres:     config.Genres,
		Languages:  config.Languages,
		AutoDetect: config.AutoDetect,
		Tiers:      []string{string(record.TierFast), string(record.TierQuality)},
		MinBatch:   config.MinBatchSize,
		MaxBatch:   config.MaxBatchSize,
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Settings())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req config.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	saved, err := s.svc.UpdateSettings(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleWatch(w http.ResponseWriter, _ *http.Request) {
	if s.watcher == nil {
		writeJSON(w, http.StatusOK, service.WatchStatus{})
		return
	}
	writeJSON(w, http.StatusOK, s.watcher.Status(time.Now()))
}

func (s *Server) handleWatchScan(w http.ResponseWriter, r *http.Request) {
	if s.watcher == nil {
		writeError(w, http.StatusNotFound, "directory watcher is not configured")
		return
	}
	queued, err := s.watcher.Scan(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued": queued,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Jobs())
}

type createJobRequest struct {
	FileName   string            `json:"file_name"`
	Content    string            `json:"content"`
	OutputPath string            `json:"output_path"`
	Settings   *config.RunConfig `json:"settings"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	req, err := decodeCreateJob(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, created, err := s.svc.Submit(service.SubmitRequest{
		FileName:   req.FileName,
		Content:    req.Content,
		Source:     service.SourceUpload,
		OutputPath: req.OutputPath,
		Settings:   req.Settings,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	code := http.StatusCreated
	if !created {
		code = http.StatusOK
	}
	writeJSON(w, code, job)
}

// decodeCreateJob accepts a JSON body or a multipart form with the file in
// field "file" and optional JSON settings in field "settings".
func decodeCreateJob(r *http.Request) (createJobRequest, error) {
	var req createJobRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.New("invalid json body")
		}
		return req, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return req, errors.New("invalid multipart body")
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		return req, errors.New("file is required")
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return req, fmt.Errorf("read file: %w", err)
	}
	req.FileName = header.Filename
	req.Content = string(content)
	req.OutputPath = r.FormValue("output_path")
	if raw := strings.TrimSpace(r.FormValue("settings")); raw != "" {
		var settings config.RunConfig
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			return req, errors.New("invalid settings json")
		}
		req.Settings = &settings
	}
	return req, nil
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	details, err := s.svc.Job(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.Items(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := items[:0]
		for _, item := range items {
			if string(item.Status) == status {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	writeJSON(w, http.StatusOK, items)
}

type applyResponse struct {
	Item    record.Record `json:"item"`
	Changed bool          `json:"changed"`
}

func (s *Server) handleApplySuggestion(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.Atoi(chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "item id must be a number")
		return
	}
	item, changed, err := s.svc.ApplySuggestion(chi.URLParam(r, "id"), itemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, applyResponse{Item: item, Changed: changed})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.Logs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	name, content, err := s.svc.Output(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-subrip; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, content)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// handleRerun starts another run over a finished job's records. It answers
// 201 with the new job, or 200 with a rerun that is already queued.
func (s *Server) handleRerun(w http.ResponseWriter, r *http.Request) {
	job, created, err := s.svc.Rerun(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	code := http.StatusCreated
	if !created {
		code = http.StatusOK
	}
	writeJSON(w, code, job)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	msg := svcErr.Message
	if svcErr.Cause != nil {
		msg += ": " + svcErr.Cause.Error()
	}
	writeError(w, statusFor(svcErr.Type), msg)
}

func statusFor(t service.ErrorType) int {
	switch t {
	case service.ErrValidation:
		return http.StatusBadRequest
	case service.ErrNotFound:
		return http.StatusNotFound
	case service.ErrParse, service.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
