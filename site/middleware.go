package site

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"inkblog/auth"
	"inkblog/session"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type ContextKey string

const RequestStateKey = ContextKey("request_state")

const SessionCookieName = "inkblog_session"

// requestState is the visitor's session as resolved for one request.
type requestState struct {
	principal auth.Principal
	token     string
	data      *session.Data
}

func stateFrom(r *http.Request) *requestState {
	st, _ := r.Context().Value(RequestStateKey).(*requestState)
	if st == nil {
		return &requestState{principal: auth.Anonymous}
	}
	return st
}

func principalFrom(r *http.Request) auth.Principal {
	return stateFrom(r).principal
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   SessionCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// LoadSession puts the visitor's session and principal into the request context.
func (s *Server) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := &requestState{principal: auth.Anonymous}

		cookie, err := r.Cookie(SessionCookieName)
		if err == nil && cookie.Value != "" {
			principal, data, err := s.auth.Resolve(r.Context(), cookie.Value)
			if err != nil {
				s.log.Error().Err(err).Msg("failed to resolve session")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if data == nil {
				clearSessionCookie(w)
			} else {
				st = &requestState{principal: principal, token: cookie.Value, data: data}
			}
		}

		ctx := context.WithValue(r.Context(), RequestStateKey, st)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensureSession gives an anonymous visitor a stored session so forms can carry a CSRF token.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) (*requestState, error) {
	st := stateFrom(r)
	if st.data != nil {
		return st, nil
	}

	token, data, err := session.New(0, s.sessionTTL, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(r.Context(), token, data); err != nil {
		return nil, err
	}
	s.setSessionCookie(w, token, data.ExpiresAt)
	st.token, st.data = token, data
	return st, nil
}

// flash queues msg for the next page the visitor sees.
func (s *Server) flash(w http.ResponseWriter, r *http.Request, msg string) {
	st, err := s.ensureSession(w, r)
	if err == nil {
		st.data.AddFlash(msg)
		err = s.sessions.Save(r.Context(), st.token, st.data)
	}
	if err != nil {
		s.log.Error().Err(err).Str("flash", msg).Msg("failed to store flash message")
	}
}

// signIn swaps the request's session for the one just established.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request, est *auth.Established) {
	s.setSessionCookie(w, est.Token, est.Session.ExpiresAt)
	st := stateFrom(r)
	st.principal = auth.Principal{User: est.User}
	st.token, st.data = est.Token, est.Session
}

func (s *Server) validCSRF(r *http.Request, token string) bool {
	st := stateFrom(r)
	if st.data == nil || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(st.data.CSRFToken)) == 1
}

// CSRFProtect rejects unsafe requests whose csrf_token field does not match the session.
func (s *Server) CSRFProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if !s.validCSRF(r, r.PostFormValue("csrf_token")) {
			s.log.Warn().Str("path", r.URL.Path).Str("request_id", middleware.GetReqID(r.Context())).
				Msg("rejected request with a missing or stale CSRF token")
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole lets a request through only when allowed(principal) holds; otherwise 403.
func RequireRole(allowed func(auth.Principal) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed(principalFrom(r)) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger writes one zerolog line per request.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
