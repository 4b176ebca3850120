// Package site serves the blog over HTTP.
package site

import (
	"strings"
	"time"

	"inkblog/auth"
	"inkblog/content"
	"inkblog/notify"
	"inkblog/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type Deps struct {
	DB       *gorm.DB
	Auth     *auth.Service
	Content  *content.Service
	Sessions session.Store
	Mailer   notify.Sender
	Logger   zerolog.Logger

	PublicURL      string
	SessionTTL     time.Duration
	CookieSecure   bool
	AllowedOrigins []string
}

type Server struct {
	db       *gorm.DB
	auth     *auth.Service
	content  *content.Service
	sessions session.Store
	mailer   notify.Sender
	log      zerolog.Logger
	validate *validator.Validate

	publicURL      string
	sessionTTL     time.Duration
	cookieSecure   bool
	allowedOrigins []string
	now            func() time.Time
}

func NewServer(d Deps) *Server {
	if d.SessionTTL <= 0 {
		d.SessionTTL = 7 * 24 * time.Hour
	}
	if len(d.AllowedOrigins) == 0 {
		d.AllowedOrigins = []string{"*"}
	}
	return &Server{
		db:             d.DB,
		auth:           d.Auth,
		content:        d.Content,
		sessions:       d.Sessions,
		mailer:         d.Mailer,
		log:            d.Logger.With().Str("component", "site").Logger(),
		validate:       newValidator(),
		publicURL:      strings.TrimSuffix(d.PublicURL, "/"),
		sessionTTL:     d.SessionTTL,
		cookieSecure:   d.CookieSecure,
		allowedOrigins: d.AllowedOrigins,
		now:            time.Now,
	}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	CORSMiddleware := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(CORSMiddleware.Handler)
		r.Get("/posts", s.APIListPosts)
		r.Get("/posts/{id:[0-9]+}", s.APIGetPost)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.LoadSession)
		r.Use(s.CSRFProtect)

		r.Get("/", s.Home)
		r.Get("/about", s.About)
		r.Get("/contact", s.Contact)
		r.Post("/contact", s.Contact)

		r.Get("/register", s.UserSignUp)
		r.Post("/register", s.UserSignUp)
		r.Get("/login", s.UserSignIn)
		r.Post("/login", s.UserSignIn)
		r.Get("/logout", s.UserLogout)

		r.Get("/post/{id:[0-9]+}", s.PublicViewPost)
		r.Post("/post/{id:[0-9]+}", s.PublicViewPost)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(auth.IsAdmin))
			r.Get("/new-post", s.CreatePost)
			r.Post("/new-post", s.CreatePost)
			r.Get("/edit-post/{id:[0-9]+}", s.EditPost)
			r.Post("/edit-post/{id:[0-9]+}", s.EditPost)
			r.Get("/delete/{id:[0-9]+}", s.DeletePost)
			r.Post("/delete/{id:[0-9]+}", s.DeletePost)
		})
	})

	return r
}
