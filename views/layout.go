// Package views renders the site's HTML with gomponents.
package views

import (
	"inkblog/constants"
	"inkblog/database"

	g "github.com/maragudk/gomponents"
	. "github.com/maragudk/gomponents/html"
)

// Page carries what every rendered view needs besides its own content.
type Page struct {
	Title       string
	CurrentUser *database.User
	IsAdmin     bool
	Flashes     []string
	CSRFToken   string
	Year        int
}

func (p Page) LoggedIn() bool {
	return p.CurrentUser != nil
}

func NavbarComponent(page Page) g.Node {
	return Nav(Class("nav"),
		Div(Class("nav-left"),
			Div(Class("brand"), A(Href("/"), g.Text(constants.APP_NAME))),
		),
		Div(Class("nav-links nav-right"),
			A(Href("/"), g.Text("Home")),
			A(Href("/about"), g.Text("About")),
			A(Href("/contact"), g.Text("Contact")),
			g.If(!page.LoggedIn(),
				g.Group([]g.Node{
					A(Href("/login"), g.Text("Login")),
					A(Href("/register"), g.Text("Register")),
				}),
			),
			g.If(page.LoggedIn(),
				g.Group([]g.Node{
					g.If(page.IsAdmin, A(Href("/new-post"), g.Text("Create New Post"))),
					A(Href("/logout"), g.Text("Log Out")),
				}),
			),
		),
	)
}

func flashList(flashes []string) g.Node {
	if len(flashes) == 0 {
		return nil
	}
	items := make([]g.Node, 0, len(flashes))
	for _, msg := range flashes {
		items = append(items, Li(g.Text(msg)))
	}
	return Ul(Class("flashes"), g.Group(items))
}

func FooterComponent(page Page) g.Node {
	return Footer(Class("footer"),
		P(Small(g.Textf("Copyright © %d %s", page.Year, constants.APP_NAME))),
	)
}

func Layout(page Page, children ...g.Node) g.Node {
	title := constants.APP_NAME
	if page.Title != "" {
		title = page.Title + " | " + constants.APP_NAME
	}

	return Doctype(
		HTML(
			Lang("en"),
			Head(
				Meta(Charset("utf-8")),
				Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
				Link(Rel("stylesheet"), Href("https://unpkg.com/chota@0.9.2/dist/chota.min.css")),
				TitleEl(g.Text(title)),
			),
			Body(
				Div(Class("container"), Style("margin-top: 1.5em;"),
					NavbarComponent(page),
					flashList(page.Flashes),
					Main(
						g.Group(children),
					),
				),
				FooterComponent(page),
			),
		),
	)
}

// pageHeader is the banner shown above each page's content.
func pageHeader(heading, subheading string) g.Node {
	return Header(Class("page-header"),
		H1(g.Text(heading)),
		g.If(subheading != "", Span(Class("subheading"), g.Text(subheading))),
	)
}
