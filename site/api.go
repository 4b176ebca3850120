package site

import (
	"encoding/json"
	"net/http"
	"strconv"

	"inkblog/database"
)

type apiPost struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Date     string `json:"date"`
	ImgURL   string `json:"img_url"`
	Author   string `json:"author"`
	Body     string `json:"body,omitempty"`
	URL      string `json:"url"`
}

func (s *Server) toAPIPost(p database.Post, withBody bool) apiPost {
	out := apiPost{
		ID:       p.ID,
		Title:    p.Title,
		Subtitle: p.Subtitle,
		Date:     p.Date,
		ImgURL:   p.ImgURL,
		Author:   p.Author.Name,
		URL:      s.publicURL + "/post/" + strconv.FormatUint(uint64(p.ID), 10),
	}
	if withBody {
		out.Body = p.Body
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) APIListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.content.ListPosts(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	out := make([]apiPost, 0, len(posts))
	for _, p := range posts {
		out = append(out, s.toAPIPost(p, false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) APIGetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := postIDParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	post, err := s.content.GetPost(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toAPIPost(*post, true))
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := database.Ping(r.Context(), s.db); err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
