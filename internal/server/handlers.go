package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/schemarag/internal/cli"
	"github.com/hyperjump/schemarag/internal/execute"
	"github.com/hyperjump/schemarag/internal/generation"
	"github.com/hyperjump/schemarag/internal/models"
	"github.com/hyperjump/schemarag/internal/pipeline"
	"github.com/hyperjump/schemarag/internal/schema"
	"github.com/hyperjump/schemarag/internal/storage"
	"github.com/hyperjump/schemarag/internal/summary"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type errorResponse struct {
	Error  string         `json:"error"`
	Answer *models.Answer `json:"answer,omitempty"`
}

type tableResponse struct {
	Name    string        `json:"name"`
	Summary string        `json:"summary"`
	Table   *schema.Table `json:"definition,omitempty"`
}

// statusFor maps pipeline error kinds to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generation.ErrResponseParse), errors.Is(err, generation.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, execute.ErrQueryExecution):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrNoExecutor):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("ask request",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("question", req.Question),
		zap.Int("k", req.TopK),
		zap.Bool("execute", req.Execute))
	answer, err := s.session.Ask(r.Context(), req)
	if err != nil {
		s.logger.Error("ask failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		s.respondJSON(w, statusFor(err), errorResponse{Error: err.Error(), Answer: answer})
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleExport answers like handleAsk with execution forced on and returns the rows as
// an .xlsx workbook. Failures are reported as JSON.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Execute = true
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	answer, err := s.session.Ask(r.Context(), req)
	if err != nil {
		s.logger.Error("export failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		s.respondJSON(w, statusFor(err), errorResponse{Error: err.Error(), Answer: answer})
		return
	}
	var buf bytes.Buffer
	if err := cli.WriteXLSX(&buf, answer.Result); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="result.xlsx"`)
	w.Header().Set("X-Answer-Id", answer.ID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := s.session.Retrieve(r.Context(), req.Question, req.TopK)
	if err != nil {
		s.logger.Error("retrieve failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	selected := schema.Select(s.session.Schema(), results)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"question": req.Question,
		"results":  results,
		"schema":   selected,
	})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables := s.session.Schema().Tables()
	out := make([]tableResponse, len(tables))
	for i, t := range tables {
		out[i] = tableResponse{Name: t.Name, Summary: summary.Summarize(t)}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"tables": out, "total": len(out)})
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t, ok := s.session.Schema().Table(name)
	if !ok {
		s.respondError(w, http.StatusNotFound, "table not found")
		return
	}
	s.respondJSON(w, http.StatusOK, tableResponse{Name: t.Name, Summary: summary.Summarize(t), Table: t})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.session.History()
	if history == nil {
		s.respondError(w, http.StatusNotImplemented, "history not enabled")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	ctx := r.Context()
	records, err := history.ListQuestions(ctx, offset, limit)
	if err != nil {
		s.logger.Error("history: list failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := history.CountQuestions(ctx)
	if err != nil {
		s.logger.Error("history: count failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []*models.QuestionRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"questions": records,
		"total":     total,
		"offset":    offset,
		"limit":     limit,
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.session.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{"status": st}

	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"schema_path":      s.config.Schema.Path,
			"database_path":    s.config.Storage.DatabasePath,
			"index_path":       s.config.Storage.IndexPath,
			"top_k":            s.config.Retrieval.TopK,
			"generation_model": s.config.Generation.Model,
			"dialect":          s.config.Generation.Dialect,
		}
		diskBytes, err := storage.DiskUsageBytes(append(storage.DatabaseFiles(s.config.Storage.DatabasePath), s.config.Storage.IndexPath)...)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}
