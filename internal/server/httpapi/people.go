package httpapi

import (
	"net/http"
	"time"

	"github.com/cherishly/cherishly/internal/server/models"
	"github.com/go-chi/chi/v5"
)

type personRequest struct {
	Name             string `json:"name"`
	RelationshipType string `json:"relationship_type"`
}

type personResponse struct {
	ID               string `json:"id"`
	PersonUID        string `json:"person_uid"`
	Name             string `json:"name"`
	RelationshipType string `json:"relationship_type"`
	Archived         bool   `json:"archived"`
}

func toPersonResponse(p *models.Person) personResponse {
	return personResponse{
		ID:               p.ID,
		PersonUID:        p.PersonUID,
		Name:             p.Name,
		RelationshipType: p.RelationshipType,
		Archived:         p.Archived,
	}
}

func (h *Handler) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	person, err := h.people.Create(r.Context(), userID(r), req.Name, req.RelationshipType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonResponse(person))
}

func (h *Handler) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	person, err := h.people.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonResponse(person))
}

func (h *Handler) handleListPeople(w http.ResponseWriter, r *http.Request) {
	people, err := h.people.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]personResponse, 0, len(people))
	for _, p := range people {
		out = append(out, toPersonResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	person, err := h.people.Update(r.Context(), userID(r), chi.URLParam(r, "id"), req.Name, req.RelationshipType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonResponse(person))
}

func (h *Handler) handleArchivePerson(w http.ResponseWriter, r *http.Request) {
	if err := h.people.Archive(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mergeRequest struct {
	KeepID string `json:"keep_id"`
	DropID string `json:"drop_id"`
}

func (h *Handler) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	mergeLog, err := h.merge.MergePeople(r.Context(), userID(r), req.KeepID, req.DropID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"merge_log_id": mergeLog.ID})
}

func (h *Handler) handleUndoMerge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MergeLogID string `json:"merge_log_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.merge.UndoMerge(r.Context(), userID(r), req.MergeLogID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"undone": true})
}

type momentRequest struct {
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Recurring   bool      `json:"recurring"`
	PartnerIDs  []string  `json:"partner_ids"`
}

type momentResponse struct {
	ID          string    `json:"id"`
	MomentUID   string    `json:"moment_uid"`
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Recurring   bool      `json:"recurring"`
	PartnerIDs  []string  `json:"partner_ids"`
}

func toMomentResponse(m *models.Moment) momentResponse {
	return momentResponse{
		ID:          m.ID,
		MomentUID:   m.MomentUID,
		Title:       m.Title,
		Date:        m.Date,
		Description: m.Description,
		Recurring:   m.Recurring,
		PartnerIDs:  m.PartnerIDs,
	}
}

func (h *Handler) handleCreateMoment(w http.ResponseWriter, r *http.Request) {
	var req momentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	moment, err := h.moments.Create(r.Context(), userID(r), req.Title, req.Date, req.Description, req.Recurring, req.PartnerIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMomentResponse(moment))
}

func (h *Handler) handleGetMoment(w http.ResponseWriter, r *http.Request) {
	moment, err := h.moments.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMomentResponse(moment))
}

func (h *Handler) handleListMoments(w http.ResponseWriter, r *http.Request) {
	moments, err := h.moments.ListByPartner(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]momentResponse, 0, len(moments))
	for _, m := range moments {
		out = append(out, toMomentResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleUpdateMoment(w http.ResponseWriter, r *http.Request) {
	var req momentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	moment, err := h.moments.Update(r.Context(), userID(r), chi.URLParam(r, "id"), req.Title, req.Date, req.Description, req.Recurring, req.PartnerIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMomentResponse(moment))
}

func (h *Handler) handleDeleteMoment(w http.ResponseWriter, r *http.Request) {
	if err := h.moments.Delete(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
