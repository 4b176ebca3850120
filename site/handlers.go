package site

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"inkblog/apperr"
	"inkblog/auth"
	"inkblog/content"
	"inkblog/database"
	"inkblog/notify"
	"inkblog/views"

	"github.com/go-chi/chi/v5"
	g "github.com/maragudk/gomponents"
)

const (
	FlashDuplicateEmail = "You have already signed up with that email, log in instead!"
	FlashLoginFailed    = "Login failed. Check your email and password and try again."
	FlashLoginToComment = "Please log in or register to comment!"
	FlashDuplicateTitle = "A post with that title already exists."
	FlashContactSent    = "Successfully sent your message. I will get back to you soon!"
	FlashContactNotSent = "Sorry, your message could not be sent. Please try again later."
)

func postIDParam(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (s *Server) Home(w http.ResponseWriter, r *http.Request) {
	posts, err := s.content.ListPosts(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.RenderPage(w, r, http.StatusOK, "", func(p views.Page) g.Node {
		return views.HomePage(p, posts)
	})
}

func (s *Server) renderRegister(w http.ResponseWriter, r *http.Request, form views.FormState) {
	s.RenderPage(w, r, http.StatusOK, "Register", func(p views.Page) g.Node {
		return views.RegisterPage(p, form)
	})
}

func (s *Server) UserSignUp(w http.ResponseWriter, r *http.Request) {
	if principalFrom(r).Authenticated() {
		redirect(w, r, "/")
		return
	}
	if r.Method == http.MethodGet {
		s.renderRegister(w, r, views.NewFormState())
		return
	}

	var form registerForm
	if err := decodeForm(r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := s.validateForm(&form); err != nil {
		s.renderRegister(w, r, withErrors(formState(&form), err))
		return
	}

	est, err := s.auth.Register(r.Context(), auth.RegisterInput{
		Email:         form.Email,
		Password:      form.Password,
		Name:          form.Name,
		PreviousToken: stateFrom(r).token,
	})
	switch {
	case errors.Is(err, apperr.ErrDuplicateEmail):
		s.flash(w, r, FlashDuplicateEmail)
		redirect(w, r, "/login")
		return
	case apperr.IsValidation(err):
		s.renderRegister(w, r, withErrors(formState(&form), err))
		return
	case err != nil:
		s.serverError(w, r, err)
		return
	}

	s.signIn(w, r, est)
	redirect(w, r, "/")
}

func (s *Server) renderLogin(w http.ResponseWriter, r *http.Request, form views.FormState) {
	s.RenderPage(w, r, http.StatusOK, "Log In", func(p views.Page) g.Node {
		return views.LoginPage(p, form)
	})
}

func (s *Server) UserSignIn(w http.ResponseWriter, r *http.Request) {
	if principalFrom(r).Authenticated() {
		redirect(w, r, "/")
		return
	}
	if r.Method == http.MethodGet {
		s.renderLogin(w, r, views.NewFormState())
		return
	}

	var form loginForm
	if err := decodeForm(r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := s.validateForm(&form); err != nil {
		s.renderLogin(w, r, withErrors(formState(&form), err))
		return
	}

	est, err := s.auth.Login(r.Context(), auth.LoginInput{
		Email:         form.Email,
		Password:      form.Password,
		PreviousToken: stateFrom(r).token,
	})
	switch {
	case errors.Is(err, apperr.ErrUserNotFound), errors.Is(err, apperr.ErrInvalidCredentials):
		s.flash(w, r, FlashLoginFailed)
		redirect(w, r, "/login")
		return
	case err != nil:
		s.serverError(w, r, err)
		return
	}

	s.signIn(w, r, est)
	redirect(w, r, "/")
}

func (s *Server) UserLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), stateFrom(r).token); err != nil {
		s.serverError(w, r, err)
		return
	}
	clearSessionCookie(w)
	redirect(w, r, "/")
}

func (s *Server) renderPost(w http.ResponseWriter, r *http.Request, post *database.Post, form views.FormState) {
	s.RenderPage(w, r, http.StatusOK, post.Title, func(p views.Page) g.Node {
		return views.PostPage(p, post, form)
	})
}

func (s *Server) PublicViewPost(w http.ResponseWriter, r *http.Request) {
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
	if r.Method == http.MethodGet {
		s.renderPost(w, r, post, views.NewFormState())
		return
	}

	principal := principalFrom(r)
	if !principal.Authenticated() {
		s.flash(w, r, FlashLoginToComment)
		redirect(w, r, "/login")
		return
	}

	var form commentForm
	if err := decodeForm(r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := s.validateForm(&form); err != nil {
		s.renderPost(w, r, post, withErrors(formState(&form), err))
		return
	}

	_, err = s.content.AddComment(r.Context(), post.ID, form.Body, principal)
	switch {
	case apperr.IsValidation(err):
		s.renderPost(w, r, post, withErrors(formState(&form), err))
		return
	case errors.Is(err, apperr.ErrUnauthenticated):
		s.flash(w, r, FlashLoginToComment)
		redirect(w, r, "/login")
		return
	case err != nil:
		s.fail(w, r, err)
		return
	}

	redirect(w, r, fmt.Sprintf("/post/%d", post.ID))
}

func (f postForm) input() content.PostInput {
	return content.PostInput{Title: f.Title, Subtitle: f.Subtitle, ImgURL: f.ImgURL, Body: f.Body}
}

func (s *Server) renderMakePost(w http.ResponseWriter, r *http.Request, postID uint, form views.FormState) {
	title := "New Post"
	if postID != 0 {
		title = "Edit Post"
	}
	s.RenderPage(w, r, http.StatusOK, title, func(p views.Page) g.Node {
		return views.MakePostPage(p, postID, form)
	})
}

// savePost handles a submitted post form. postID 0 creates a new post.
func (s *Server) savePost(w http.ResponseWriter, r *http.Request, postID uint) {
	var form postForm
	if err := decodeForm(r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := s.validateForm(&form); err != nil {
		s.renderMakePost(w, r, postID, withErrors(formState(&form), err))
		return
	}

	var (
		post *database.Post
		err  error
		next string
	)
	if postID == 0 {
		post, err = s.content.CreatePost(r.Context(), form.input(), principalFrom(r))
		next = "/"
	} else {
		post, err = s.content.EditPost(r.Context(), postID, form.input(), principalFrom(r))
		next = fmt.Sprintf("/post/%d", postID)
	}

	switch {
	case errors.Is(err, apperr.ErrDuplicateTitle):
		s.flash(w, r, FlashDuplicateTitle)
		s.renderMakePost(w, r, postID, formState(&form))
		return
	case apperr.IsValidation(err):
		s.renderMakePost(w, r, postID, withErrors(formState(&form), err))
		return
	case err != nil:
		s.fail(w, r, err)
		return
	}

	s.log.Debug().Uint("post_id", post.ID).Msg("post saved")
	redirect(w, r, next)
}

func (s *Server) CreatePost(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.renderMakePost(w, r, 0, views.NewFormState())
	case http.MethodPost:
		s.savePost(w, r, 0)
	default:
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (s *Server) EditPost(w http.ResponseWriter, r *http.Request) {
	id, ok := postIDParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		post, err := s.content.GetPost(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.renderMakePost(w, r, id, formState(&postForm{
			Title:    post.Title,
			Subtitle: post.Subtitle,
			ImgURL:   post.ImgURL,
			Body:     post.Body,
		}))
	case http.MethodPost:
		s.savePost(w, r, id)
	default:
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

// DeletePost accepts the GET link rendered for the admin, which carries the CSRF token in its
// query string, as well as a POST form.
func (s *Server) DeletePost(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && !s.validCSRF(r, r.URL.Query().Get("csrf_token")) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	id, ok := postIDParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	if err := s.content.DeletePost(r.Context(), id, principalFrom(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	redirect(w, r, "/")
}

func (s *Server) About(w http.ResponseWriter, r *http.Request) {
	s.RenderPage(w, r, http.StatusOK, "About", views.AboutPage)
}

func (s *Server) renderContact(w http.ResponseWriter, r *http.Request, form views.FormState) {
	s.RenderPage(w, r, http.StatusOK, "Contact", func(p views.Page) g.Node {
		return views.ContactPage(p, form)
	})
}

func (s *Server) Contact(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.renderContact(w, r, views.NewFormState())
		return
	}

	var form contactForm
	if err := decodeForm(r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := s.validateForm(&form); err != nil {
		s.renderContact(w, r, withErrors(formState(&form), err))
		return
	}

	result := s.mailer.Send(r.Context(), notify.Message{
		Name:  form.Name,
		Email: form.Email,
		Phone: form.Phone,
		Body:  form.Message,
	})
	ContactMessagesTotal.WithLabelValues(result.Outcome.String()).Inc()

	if !result.OK() {
		s.log.Warn().Str("reason", result.Reason).Msg("contact message failed")
		s.flash(w, r, FlashContactNotSent)
		s.renderContact(w, r, formState(&form))
		return
	}

	s.flash(w, r, FlashContactSent)
	redirect(w, r, "/contact")
}
