package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/pdn-sentinel/internal/decision"
	"github.com/raaihank/pdn-sentinel/internal/document"
	"github.com/raaihank/pdn-sentinel/internal/privacy"
	"github.com/raaihank/pdn-sentinel/internal/report"
	"github.com/raaihank/pdn-sentinel/internal/service"
	"github.com/raaihank/pdn-sentinel/internal/store"
	"github.com/raaihank/pdn-sentinel/internal/workflow"
	"go.uber.org/zap"
)

// DocumentRequest is the body of the scan, anonymize and process endpoints
type DocumentRequest struct {
	Document  string   `json:"document,omitempty"`
	Text      string   `json:"text"`
	Mode      string   `json:"mode,omitempty"`
	Decisions []string `json:"decisions,omitempty"`
}

// DocumentResponse carries the report and, for rewrites, the output text
type DocumentResponse struct {
	Report *report.Report `json:"report"`
	Text   string         `json:"text,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// CategoryInfo describes one active category
type CategoryInfo struct {
	Name       string `json:"name"`
	Rule       string `json:"rule"`
	LegalBasis string `json:"legal_basis"`
	Custom     bool   `json:"custom"`
}

// CategoriesResponse lists the active registry and the stored definitions
type CategoriesResponse struct {
	Profile    string                 `json:"profile"`
	Categories []CategoryInfo         `json:"categories"`
	Stored     []store.CategoryRecord `json:"stored,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// handleInfo reports the running configuration without secrets
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.services.Config()
	reg := s.engine().Registry()

	info := map[string]any{
		"service":     "pdn-sentinel",
		"version":     Version,
		"uptime":      time.Since(s.startedAt).Round(time.Second).String(),
		"profile":     reg.Name(),
		"categories":  reg.Len(),
		"fingerprint": reg.Fingerprint(),
		"decision": map[string]any{
			"default":      cfg.Decision.Default,
			"max_attempts": cfg.Decision.MaxAttempts,
		},
		"cache_enabled": s.services.Cache != nil,
		"store_enabled": s.services.Store != nil,
		"websocket":     s.wsHub.GetStats(),
	}
	if s.services.Cache != nil {
		if stats, err := s.services.Cache.GetStats(r.Context()); err == nil {
			info["cache"] = stats
		}
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	reg := s.engine().Registry()

	resp := CategoriesResponse{Profile: reg.Name()}
	for _, c := range reg.Categories() {
		resp.Categories = append(resp.Categories, CategoryInfo{
			Name:       c.Name,
			Rule:       c.Rule.Source,
			LegalBasis: c.LegalBasis,
			Custom:     !s.services.IsBuiltin(c.Name),
		})
	}

	if s.services.Store != nil {
		records, err := s.services.Store.List(r.Context())
		if err != nil {
			s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to list stored categories", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list stored categories")
			return
		}
		resp.Stored = records
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutCategory(w http.ResponseWriter, r *http.Request) {
	log := s.logger.WithRequestID(getRequestID(r.Context()))

	var def privacy.CategoryDef
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid category definition: "+err.Error())
		return
	}
	def.Name = mux.Vars(r)["name"]

	if s.services.IsBuiltin(def.Name) {
		writeError(w, http.StatusConflict, service.ErrBuiltinCategory.Error()+": "+def.Name)
		return
	}
	if _, _, err := privacy.CompileDefinition(def); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.services.SaveCategory(r.Context(), def)
	switch {
	case errors.Is(err, service.ErrStoreDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, service.ErrBuiltinCategory):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil && record == nil:
		log.Error("Failed to store category", zap.String("category", def.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store category")
		return
	case err != nil:
		log.Error("Category stored but reload failed", zap.String("category", def.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info("Custom category stored", zap.String("category", def.Name), zap.String("kind", def.Kind))
	s.Reloaded("category " + def.Name + " stored")
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if s.services.IsBuiltin(name) {
		writeError(w, http.StatusConflict, service.ErrBuiltinCategory.Error()+": "+name)
		return
	}

	err := s.services.DeleteCategory(r.Context(), name)
	switch {
	case errors.Is(err, service.ErrStoreDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, store.ErrCategoryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to delete category",
			zap.String("category", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete category")
		return
	}

	s.Reloaded("category " + name + " deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDocument(w, r)
	if !ok {
		return
	}

	start := time.Now()
	engine := s.engine()
	findings, err := engine.Scan(r.Context(), req.Text)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	rep := report.ForScan(engine.Registry(), req.Document, findings)
	s.wsHub.PublishReport(getRequestID(r.Context()), rep.ID, rep, time.Since(start))
	writeJSON(w, http.StatusOK, DocumentResponse{Report: rep})
}

func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDocument(w, r)
	if !ok {
		return
	}

	if req.Mode == "" {
		req.Mode = s.services.Config().Redaction.Mode
	}
	mode, err := privacy.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	engine := s.engine()
	res, err := engine.Anonymize(r.Context(), req.Text, mode)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	rep := report.ForAnonymize(engine.Registry(), req.Document, res, s.services.Config().Output.PreviewLength)
	s.wsHub.PublishReport(getRequestID(r.Context()), res.DocumentID, rep, time.Since(start))
	writeJSON(w, http.StatusOK, DocumentResponse{Report: rep, Text: res.Text})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDocument(w, r)
	if !ok {
		return
	}

	var decider workflow.Decider
	if len(req.Decisions) > 0 {
		decider = decision.NewScripted(req.Decisions...)
	} else {
		policy, err := s.services.Policy()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		decider = policy
	}

	start := time.Now()
	engine := s.engine()
	res, err := engine.Process(r.Context(), req.Text, decider)
	if res == nil {
		s.writeEngineError(w, r, err)
		return
	}

	cfg := s.services.Config()
	rep := report.ForResult(engine.Registry(), req.Document, res, cfg.Output.PreviewLength)
	s.wsHub.PublishReport(getRequestID(r.Context()), res.DocumentID, rep, time.Since(start))

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, decision.ErrScriptExhausted) || errors.Is(err, workflow.ErrDecisionAttemptsExceeded) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, DocumentResponse{Report: rep, Text: res.Text, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Report: rep, Text: res.Text})
}

// decodeDocument reads the request body and rejects blank text
func (s *Server) decodeDocument(w http.ResponseWriter, r *http.Request) (*DocumentRequest, bool) {
	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	if err := document.CheckText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if req.Document == "" {
		req.Document = "request"
	}
	return &req, true
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, document.ErrEmptyInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.WithRequestID(getRequestID(r.Context())).Error("Document processing failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "document processing failed")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
