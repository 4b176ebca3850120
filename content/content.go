// Package content implements the post and comment operations and their authorship rules.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"inkblog/apperr"
	"inkblog/auth"
	"inkblog/constants"
	"inkblog/database"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// PostInput holds the editable fields of a post.
type PostInput struct {
	Title    string
	Subtitle string
	ImgURL   string
	Body     string
}

type Service struct {
	db  *gorm.DB
	log zerolog.Logger
	now func() time.Time
}

func NewService(db *gorm.DB, log zerolog.Logger) *Service {
	return &Service{
		db:  db,
		log: log.With().Str("component", "content").Logger(),
		now: time.Now,
	}
}

// WithClock returns a copy of the service that reads the current time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	c := *s
	c.now = now
	return &c
}

func (in PostInput) normalize() (PostInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Subtitle = strings.TrimSpace(in.Subtitle)
	in.ImgURL = strings.TrimSpace(in.ImgURL)

	fields := map[string]string{}
	check := func(name, value string, max int) {
		switch {
		case value == "":
			fields[name] = "This field is required."
		case max > 0 && utf8.RuneCountInString(value) > max:
			fields[name] = fmt.Sprintf("Must be at most %d characters.", max)
		}
	}
	check("title", in.Title, constants.MAX_TITLE_LENGTH)
	check("subtitle", in.Subtitle, constants.MAX_TITLE_LENGTH)
	check("img_url", in.ImgURL, constants.MAX_URL_LENGTH)
	check("body", strings.TrimSpace(in.Body), 0)

	if len(fields) > 0 {
		return in, &apperr.ValidationError{Fields: fields}
	}
	return in, nil
}

func (s *Service) ListPosts(ctx context.Context) ([]database.Post, error) {
	var posts []database.Post
	err := s.db.WithContext(ctx).Preload("Author").Order("id").Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// GetPost returns the post with its author and comments (oldest first).
func (s *Service) GetPost(ctx context.Context, id uint) (*database.Post, error) {
	var post database.Post
	err := s.db.WithContext(ctx).
		Preload("Author").
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Comments.Author").
		First(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("post", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get post %d: %w", id, err)
	}
	return &post, nil
}

func titleTaken(tx *gorm.DB, title string, exceptID uint) (bool, error) {
	q := tx.Model(&database.Post{}).Where("title = ?", title)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func mapWriteError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.ErrDuplicateTitle
	}
	return err
}

func (s *Service) CreatePost(ctx context.Context, in PostInput, author auth.Principal) (*database.Post, error) {
	if !auth.IsAdmin(author) {
		return nil, fmt.Errorf("create post: %w", apperr.ErrForbidden)
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	post := database.Post{
		AuthorID: author.User.ID,
		Title:    in.Title,
		Subtitle: in.Subtitle,
		Date:     s.now().Format(constants.POST_DATE_LAYOUT),
		Body:     in.Body,
		ImgURL:   in.ImgURL,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := titleTaken(tx, post.Title, 0)
		if err != nil {
			return err
		}
		if taken {
			return apperr.ErrDuplicateTitle
		}
		return mapWriteError(tx.Omit("Author", "Comments").Create(&post).Error)
	})
	if err != nil {
		return nil, fmt.Errorf("create post %q: %w", in.Title, err)
	}

	post.Author = *author.User
	s.log.Info().Uint("post_id", post.ID).Uint("author_id", post.AuthorID).Msg("post created")
	return &post, nil
}

// EditPost overwrites the post's fields and makes editor its author.
func (s *Service) EditPost(ctx context.Context, id uint, in PostInput, editor auth.Principal) (*database.Post, error) {
	if !auth.IsAdmin(editor) {
		return nil, fmt.Errorf("edit post %d: %w", id, apperr.ErrForbidden)
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	var post database.Post
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&post, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("post", id)
			}
			return err
		}

		taken, err := titleTaken(tx, in.Title, post.ID)
		if err != nil {
			return err
		}
		if taken {
			return apperr.ErrDuplicateTitle
		}

		previousAuthor := post.AuthorID
		post.Title = in.Title
		post.Subtitle = in.Subtitle
		post.ImgURL = in.ImgURL
		post.Body = in.Body
		post.AuthorID = editor.User.ID

		if err := mapWriteError(tx.Omit("Author", "Comments").Save(&post).Error); err != nil {
			return err
		}
		if previousAuthor != post.AuthorID {
			s.log.Info().Uint("post_id", post.ID).
				Uint("previous_author_id", previousAuthor).
				Uint("author_id", post.AuthorID).
				Msg("post author reassigned to editor")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("edit post %d: %w", id, err)
	}

	post.Author = *editor.User
	return &post, nil
}

// DeletePost removes the post together with its comments.
func (s *Service) DeletePost(ctx context.Context, id uint, actor auth.Principal) error {
	if !auth.IsAdmin(actor) {
		return fmt.Errorf("delete post %d: %w", id, apperr.ErrForbidden)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post database.Post
		if err := tx.First(&post, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("post", id)
			}
			return err
		}
		if err := tx.Unscoped().Where("blog_id = ?", post.ID).Delete(&database.Comment{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&post).Error
	})
	if err != nil {
		return fmt.Errorf("delete post %d: %w", id, err)
	}

	s.log.Info().Uint("post_id", id).Msg("post deleted")
	return nil
}

func (s *Service) AddComment(ctx context.Context, postID uint, text string, author auth.Principal) (*database.Comment, error) {
	if !author.Authenticated() {
		return nil, fmt.Errorf("comment on post %d: %w", postID, apperr.ErrUnauthenticated)
	}

	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return nil, apperr.NewValidationError("body", "This field is required.")
	case utf8.RuneCountInString(text) > constants.MAX_COMMENT_LENGTH:
		return nil, apperr.NewValidationError("body",
			fmt.Sprintf("Must be at most %d characters.", constants.MAX_COMMENT_LENGTH))
	}

	comment := database.Comment{Text: text, AuthorID: author.User.ID, BlogID: postID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&database.Post{}).Where("id = ?", postID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("post", postID)
		}
		return tx.Omit("Author").Create(&comment).Error
	})
	if err != nil {
		return nil, fmt.Errorf("comment on post %d: %w", postID, err)
	}

	comment.Author = *author.User
	return &comment, nil
}
