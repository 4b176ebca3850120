package site

import (
	"bytes"
	"errors"
	"net/http"

	"inkblog/apperr"
	"inkblog/auth"
	"inkblog/views"

	g "github.com/maragudk/gomponents"
)

// RenderPage builds the page context for the visitor and writes the view returned by build.
func (s *Server) RenderPage(w http.ResponseWriter, r *http.Request, status int, title string, build func(views.Page) g.Node) {
	st, err := s.ensureSession(w, r)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	flashes := st.data.PopFlashes()
	if len(flashes) > 0 {
		if err := s.sessions.Save(r.Context(), st.token, st.data); err != nil {
			s.serverError(w, r, err)
			return
		}
	}

	page := views.Page{
		Title:       title,
		CurrentUser: st.principal.User,
		IsAdmin:     auth.IsAdmin(st.principal),
		Flashes:     flashes,
		CSRFToken:   st.data.CSRFToken,
		Year:        s.now().Year(),
	}

	var buf bytes.Buffer
	if err := build(page).Render(&buf); err != nil {
		s.serverError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// fail maps a service error to its response. Forbidden and not-found carry only the status text.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperr.ErrForbidden):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	case errors.Is(err, apperr.ErrNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	default:
		s.serverError(w, r, err)
	}
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}
