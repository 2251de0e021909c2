package mailhandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/OliverSchlueter/goutils/problems"
	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/mock-smtp-server/internal/mails"
)

// Handler exposes the mails captured by the mock server over HTTP.
type Handler struct {
	mailStore *mails.Store
}

func New(mailStore *mails.Store) *Handler {
	return &Handler{
		mailStore: mailStore,
	}
}

func (h *Handler) Register(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(prefix+"/mails", h.handleMails)
	mux.HandleFunc(prefix+"/mails/{id}", h.handleMail)
}

func (h *Handler) handleMails(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getMails(w)
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet}).WriteToHTTP(w)
	}
}

func (h *Handler) getMails(w http.ResponseWriter) {
	m, err := h.mailStore.GetMails()
	if err != nil {
		slog.Error("Could not list mails", sloki.WrapError(err))
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}
	if m == nil {
		m = []mails.Mail{}
	}

	writeJSON(w, m)
}

func (h *Handler) handleMail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		problems.ValidationError("id", "Invalid mail id").WriteToHTTP(w)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getMail(w, id)
	case http.MethodDelete:
		h.deleteMail(w, id)
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet, http.MethodDelete}).WriteToHTTP(w)
	}
}

func (h *Handler) getMail(w http.ResponseWriter, id int64) {
	mail, err := h.mailStore.GetMailByID(id)
	if err != nil {
		if errors.Is(err, mails.ErrMailNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		slog.Error("Could not get mail", "id", id, sloki.WrapError(err))
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}

	writeJSON(w, mail)
}

func (h *Handler) deleteMail(w http.ResponseWriter, id int64) {
	if err := h.mailStore.DeleteMail(id); err != nil {
		if errors.Is(err, mails.ErrMailNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		slog.Error("Could not delete mail", "id", id, sloki.WrapError(err))
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		problems.InternalServerError("Error marshalling mails").WriteToHTTP(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
