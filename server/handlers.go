package server

import (
	"encoding/json"
	"net/http"

	"github.com/snow-ghost/probe/core"
)

type openResponse struct {
	SessionID string              `json:"session_id"`
	Root      string              `json:"root"`
	Functions []string            `json:"functions"`
	Warnings  []core.ParseWarning `json:"warnings"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	sess, err := s.open(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.sessions.Add(sess)
	cat := sess.Catalog()
	warnings := cat.Warnings
	if warnings == nil {
		warnings = []core.ParseWarning{}
	}
	s.writeJSON(w, http.StatusCreated, openResponse{
		SessionID: sess.ID,
		Root:      cat.Root,
		Functions: cat.IDs(),
		Warnings:  warnings,
	})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	summary := sess.Summary()
	if err := s.sessions.Remove(sess.ID); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"session_id": sess.ID, "summary": summary})
}

func (s *Server) handleFunctions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Catalog().IDs())
}

type classInfo struct {
	ClassName  string           `json:"class_name"`
	Parameters []core.Parameter `json:"parameters"`
	// Suggested is set when the class was matched from the parameter name alone.
	Suggested bool `json:"suggested,omitempty"`
}

type functionInfo struct {
	ID               string               `json:"id"`
	Name             string               `json:"name"`
	Doc              string               `json:"doc"`
	Kind             core.CallableKind    `json:"kind"`
	Owner            string               `json:"owner,omitempty"`
	Language         string               `json:"language"`
	Parameters       []core.Parameter     `json:"parameters"`
	ClassInfo        map[string]classInfo `json:"class_info"`
	AvailableClasses []string             `json:"available_classes"`
}

func (s *Server) handleFunctionInfo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	entry, err := lookup(sess, r.URL.Query().Get("key"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	sig := entry.Signature

	info := functionInfo{
		ID:               sig.ID(),
		Name:             sig.QualifiedName,
		Doc:              sig.Doc,
		Kind:             sig.Kind,
		Owner:            sig.Owner,
		Language:         sig.Language,
		Parameters:       sig.Params,
		ClassInfo:        map[string]classInfo{},
		AvailableClasses: []string{},
	}
	if info.Doc == "" {
		info.Doc = "No description available"
	}
	if info.Parameters == nil {
		info.Parameters = []core.Parameter{}
	}
	for _, p := range sig.Params {
		if cls, ok := sess.Resolver().ClassFor(sig.Module, p); ok {
			info.ClassInfo[p.Name] = classInfo{
				ClassName:  cls.Name,
				Parameters: cls.Constructor.Params,
				Suggested:  p.TypeHint == "",
			}
		}
	}
	for _, cls := range sess.Catalog().ClassesIn(sig.Module) {
		info.AvailableClasses = append(info.AvailableClasses, cls.Name)
	}
	s.writeJSON(w, http.StatusOK, info)
}

type functionRequest struct {
	FunctionKey string `json:"function_key" validate:"required"`
}

type generateResponse struct {
	Inputs    core.ArgumentSet  `json:"inputs"`
	Rendered  map[string]string `json:"rendered"`
	Rationale map[string]string `json:"rationale,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req functionRequest
	if !s.decode(w, r, &req) {
		return
	}
	entry, err := lookup(sess, req.FunctionKey)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	args, rationale, err := sess.GenerateExplained(r.Context(), entry.Signature)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	rendered := make(map[string]string, len(args))
	for name, v := range args {
		rendered[name] = core.Render(v)
	}
	s.writeJSON(w, http.StatusOK, generateResponse{Inputs: args, Rendered: rendered, Rationale: rationale})
}

type batchRequest struct {
	FunctionKey string `json:"function_key" validate:"required"`
	Count       *int   `json:"count" validate:"omitempty,gte=0,lte=10000"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	entry, err := lookup(sess, req.FunctionKey)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	count := s.batchSize
	if req.Count != nil {
		count = *req.Count
	}
	report, err := s.runner.Run(r.Context(), sess, entry, count)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

type testRequest struct {
	FunctionKey string          `json:"function_key" validate:"required"`
	Inputs      json.RawMessage `json:"inputs"`
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req testRequest
	if !s.decode(w, r, &req) {
		return
	}
	entry, err := lookup(sess, req.FunctionKey)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	args, err := core.DecodeArguments(req.Inputs)
	if err != nil {
		s.writeError(w, err.Error(), "INVALID_REQUEST", http.StatusBadRequest)
		return
	}
	rec, err := sess.Execute(r.Context(), entry, args)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// verifyRequest names the record directly, or the function whose latest
// unreviewed record gets the verdict.
type verifyRequest struct {
	RecordID    string `json:"record_id" validate:"required_without=FunctionKey"`
	FunctionKey string `json:"function_key"`
	IsCorrect   *bool  `json:"is_correct" validate:"required"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := req.RecordID
	if id == "" {
		entry, err := lookup(sess, req.FunctionKey)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		rec, ok := sess.LatestUnreviewed(entry.Signature.ID())
		if !ok {
			s.writeError(w, "no unreviewed record for "+entry.Signature.ID(), "UNKNOWN_RECORD", http.StatusNotFound)
			return
		}
		id = rec.ID
	}
	verdict := core.VerdictFail
	if *req.IsCorrect {
		verdict = core.VerdictPass
	}
	rec, err := sess.RecordVerdict(id, verdict)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

type summaryResponse struct {
	Summary core.Summary      `json:"summary"`
	Records []core.TestRecord `json:"records"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	records := sess.Records()
	if records == nil {
		records = []core.TestRecord{}
	}
	s.writeJSON(w, http.StatusOK, summaryResponse{Summary: core.Summarize(records), Records: records})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	switch format {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
	case "yaml":
		w.Header().Set("Content-Type", "application/yaml")
	default:
		s.writeError(w, "unknown export format "+format, "INVALID_REQUEST", http.StatusBadRequest)
		return
	}
	if err := sess.Export(w, format); err != nil {
		s.logger.Warn("Export failed", "session_id", sess.ID, "error", err.Error())
	}
}
