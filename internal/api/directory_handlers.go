package api

import (
	"net/http"

	"studiobook/internal/models"
	"studiobook/internal/service"
)

type roleRequest struct {
	Role string `json:"role"`
}

type entityRequest struct {
	Name string `json:"name"`
}

func (s *HTTPServer) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var body service.RegisterRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	var caller *models.Actor
	if a, ok := ActorFromContext(r.Context()); ok {
		caller = &a
	}
	user, err := s.dir.RegisterUser(r.Context(), caller, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := s.dir.GetUser(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleUpdateUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body roleRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	role, err := models.ParseRole(body.Role)
	if err != nil {
		// Unknown names are reported by the service with the right kind.
		role = models.Role(body.Role)
	}
	user, err := s.dir.UpdateUserRole(r.Context(), actor(r), id, role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var body entityRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	entity, err := s.dir.CreateEntity(r.Context(), actor(r), body.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entity)
}

func (s *HTTPServer) handleListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.dir.ListEntities(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if entities == nil {
		entities = []*models.Entity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

func (s *HTTPServer) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entity, err := s.dir.GetEntity(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (s *HTTPServer) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var body service.ReportRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	report, err := s.dir.CreateReport(r.Context(), actor(r), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *HTTPServer) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.dir.ListReports(r.Context(), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}
