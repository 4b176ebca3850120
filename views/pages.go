package views

import (
	"fmt"
	"net/url"

	"inkblog/constants"
	"inkblog/database"

	g "github.com/maragudk/gomponents"
	. "github.com/maragudk/gomponents/html"
)

func postURL(id uint) string {
	return fmt.Sprintf("/post/%d", id)
}

// deleteURL carries the CSRF token so the confirmation link can be a plain GET.
func deleteURL(id uint, csrfToken string) string {
	return fmt.Sprintf("/delete/%d?csrf_token=%s", id, url.QueryEscape(csrfToken))
}

func HomePage(page Page, posts []database.Post) g.Node {
	items := make([]g.Node, 0, len(posts))
	for _, post := range posts {
		items = append(items, Article(Class("post-preview"),
			A(Href(postURL(post.ID)),
				H2(Class("post-title"), g.Text(post.Title)),
				H3(Class("post-subtitle"), g.Text(post.Subtitle)),
			),
			P(Class("post-meta"),
				g.Textf("Posted by %s on %s", post.Author.Name, post.Date),
				g.If(page.IsAdmin, A(Class("text-error"), Href(deleteURL(post.ID, page.CSRFToken)), g.Text(" ✘"))),
			),
			Hr(),
		))
	}

	return Layout(page,
		pageHeader(constants.APP_NAME, constants.APP_TAGLINE),
		g.If(len(posts) == 0, P(g.Text("Nothing has been posted yet."))),
		g.Group(items),
		g.If(page.IsAdmin, Div(Class("is-right"),
			A(Class("button primary"), Href("/new-post"), g.Text("Create New Post")),
		)),
	)
}

func commentList(comments []database.Comment) g.Node {
	items := make([]g.Node, 0, len(comments))
	for _, c := range comments {
		items = append(items, Li(Class("comment"),
			Img(Class("avatar"), Src(GravatarURL(c.Author.Email, constants.AVATAR_SIZE)), Alt(c.Author.Name)),
			Div(Class("comment-text"),
				P(g.Text(c.Text)),
				Span(Class("date sub-text"), g.Text(c.Author.Name)),
			),
		))
	}
	return Ul(Class("comment-list"), g.Group(items))
}

func PostPage(page Page, post *database.Post, form FormState) g.Node {
	return Layout(page,
		Header(Class("post-header"), Style(fmt.Sprintf("background-image: url('%s')", post.ImgURL)),
			H1(g.Text(post.Title)),
			H2(Class("subheading"), g.Text(post.Subtitle)),
			Span(Class("meta"), g.Textf("Posted by %s on %s", post.Author.Name, post.Date)),
		),
		Article(Class("post-body"),
			g.Raw(RenderMarkdown(post.Body)),
		),
		g.If(page.IsAdmin, Div(Class("is-right"),
			A(Class("button"), Href(fmt.Sprintf("/edit-post/%d", post.ID)), g.Text("Edit Post")),
			A(Class("button error"), Href(deleteURL(post.ID, page.CSRFToken)), g.Text("Delete Post")),
		)),
		Section(Class("comments"),
			H3(g.Text("Comments")),
			postForm(postURL(post.ID), page.CSRFToken, "Submit Comment",
				textAreaField(form, "body", "Comment", "4"),
			),
			commentList(post.Comments),
		),
	)
}

func RegisterPage(page Page, form FormState) g.Node {
	return Layout(page,
		pageHeader("Register", "Start contributing to the blog!"),
		postForm("/register", page.CSRFToken, "Sign Me Up!",
			inputField(form, "email", "Email", "email"),
			inputField(form, "password", "Password", "password"),
			inputField(form, "name", "Name", "text"),
		),
	)
}

func LoginPage(page Page, form FormState) g.Node {
	return Layout(page,
		pageHeader("Log In", "Welcome back!"),
		postForm("/login", page.CSRFToken, "Let Me In!",
			inputField(form, "email", "Email", "email"),
			inputField(form, "password", "Password", "password"),
		),
	)
}

// MakePostPage renders the post editor. postID 0 means a new post.
func MakePostPage(page Page, postID uint, form FormState) g.Node {
	heading, action := "New Post", "/new-post"
	if postID != 0 {
		heading, action = "Edit Post", fmt.Sprintf("/edit-post/%d", postID)
	}

	return Layout(page,
		pageHeader(heading, "You're going to make a great blog post!"),
		postForm(action, page.CSRFToken, "Submit Post",
			inputField(form, "title", "Blog Post Title", "text"),
			inputField(form, "subtitle", "Subtitle", "text"),
			inputField(form, "img_url", "Blog Image URL", "url"),
			textAreaField(form, "body", "Blog Content", "12"),
		),
	)
}

func AboutPage(page Page) g.Node {
	return Layout(page,
		pageHeader("About Me", "This is what I do."),
		P(g.Textf("%s is a small blog. One author writes the posts, and registered readers can leave comments under them.", constants.APP_NAME)),
		P(g.Text("If you'd like to get in touch, use the contact page.")),
	)
}

func ContactPage(page Page, form FormState) g.Node {
	return Layout(page,
		pageHeader("Contact Me", "Have questions? I have answers."),
		P(g.Text("Want to get in touch? Fill out the form below to send me a message and I will get back to you as soon as possible!")),
		postForm("/contact", page.CSRFToken, "Send",
			inputField(form, "name", "Name", "text"),
			inputField(form, "email", "Email Address", "email"),
			inputField(form, "phone", "Phone Number", "tel"),
			textAreaField(form, "message", "Message", "5"),
		),
	)
}
