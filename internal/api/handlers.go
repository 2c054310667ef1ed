package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
)

const maxCreateBody = 32 << 20

type createTaskRequest struct {
	TabID    *int                     `json:"tabId"`
	PageForm archive.PageForm         `json:"pageForm"`
	Settings *archive.CaptureSettings `json:"singleFileSetting"`
}

type taskListResponse struct {
	TaskList []archive.Task `json:"taskList"`
}

type taskResponse struct {
	Task archive.Task `json:"task"`
}

// listTasks handles GET /v1/tasks. Polling is idempotent.
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		s.logger.Error("list tasks", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "task list unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, taskListResponse{TaskList: tasks})
}

// clearFinished handles POST /v1/tasks/clear and returns the remaining list.
func (s *Server) clearFinished(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.ClearFinished(r.Context()); err != nil {
		s.logger.Error("clear finished tasks", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "task list unavailable")
		return
	}
	s.listTasks(w, r)
}

// createTask handles POST /v1/tasks; the capture runs after the response.
func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCreateBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	opts, err := s.toCreateOptions(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	task, err := s.tasks.Start(r.Context(), opts)
	if err != nil {
		s.logger.Error("start task", zap.Error(err), zap.String("href", opts.PageForm.Href))
		s.writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}
	s.writeJSON(w, http.StatusAccepted, taskResponse{Task: task})
}

// getTask handles GET /v1/tasks/{task_id}.
func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Get(r.Context(), chi.URLParam(r, "task_id"))
	switch {
	case errors.Is(err, archive.ErrTaskNotFound):
		s.writeError(w, http.StatusNotFound, "task not found")
	case err != nil:
		s.logger.Error("get task", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "task list unavailable")
	default:
		s.writeJSON(w, http.StatusOK, taskResponse{Task: task})
	}
}

// closeTab handles DELETE /v1/tabs/{tab_id}.
func (s *Server) closeTab(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(chi.URLParam(r, "tab_id"))
	if err != nil || tabID < 0 {
		s.writeError(w, http.StatusBadRequest, "tab_id must be a non-negative integer")
		return
	}
	if s.tabs == nil {
		s.writeError(w, http.StatusNotFound, "scraper does not manage tabs")
		return
	}
	err = s.tabs.CloseTab(r.Context(), tabID)
	switch {
	case errors.Is(err, archive.ErrTabNotFound):
		s.writeError(w, http.StatusNotFound, "tab not found")
	case err != nil:
		s.logger.Error("close tab", zap.Int("tab_id", tabID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to close tab")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) toCreateOptions(req createTaskRequest) (archive.CreateTaskOptions, error) {
	form := req.PageForm
	form.Title = strings.TrimSpace(form.Title)
	form.Href = strings.TrimSpace(form.Href)
	if form.Title == "" {
		return archive.CreateTaskOptions{}, errors.New("pageForm.title is required")
	}
	if form.Href == "" {
		return archive.CreateTaskOptions{}, errors.New("pageForm.href is required")
	}
	if u, err := url.Parse(form.Href); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return archive.CreateTaskOptions{}, fmt.Errorf("pageForm.href %q is not an http(s) URL", form.Href)
	}
	if strings.TrimSpace(form.FolderID) == "" {
		return archive.CreateTaskOptions{}, errors.New("pageForm.folderId is required")
	}
	if s.numeric {
		if _, err := strconv.ParseInt(strings.TrimSpace(form.FolderID), 10, 64); err != nil {
			return archive.CreateTaskOptions{}, fmt.Errorf("pageForm.folderId %q should be a number", form.FolderID)
		}
	}
	if req.TabID == nil {
		return archive.CreateTaskOptions{}, errors.New("tabId is required")
	}
	if *req.TabID < 0 {
		return archive.CreateTaskOptions{}, errors.New("tabId must be >= 0")
	}
	if form.BindTags == nil {
		form.BindTags = []string{}
	}
	settings := s.defaults
	if req.Settings != nil {
		settings = *req.Settings
	}
	return archive.CreateTaskOptions{
		TabID:    *req.TabID,
		PageForm: form,
		Settings: settings,
	}, nil
}
