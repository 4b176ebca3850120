package views

import (
	g "github.com/maragudk/gomponents"
	. "github.com/maragudk/gomponents/html"
)

// FormState holds submitted values and per-field errors for re-rendering a form.
type FormState struct {
	Values map[string]string
	Errors map[string]string
}

func NewFormState() FormState {
	return FormState{Values: map[string]string{}, Errors: map[string]string{}}
}

func (f FormState) Value(name string) string {
	return f.Values[name]
}

func (f FormState) Error(name string) string {
	return f.Errors[name]
}

func csrfField(token string) g.Node {
	return Input(Type("hidden"), Name("csrf_token"), Value(token))
}

func fieldError(form FormState, name string) g.Node {
	msg := form.Error(name)
	if msg == "" {
		return nil
	}
	return Small(Class("text-error field-error"), g.Text(msg))
}

func inputField(form FormState, name, label, inputType string) g.Node {
	value := form.Value(name)
	if inputType == "password" {
		value = ""
	}
	return Div(Class("form-group"),
		g.El("label", g.Attr("for", name), g.Text(label)),
		Input(ID(name), Type(inputType), Name(name), Value(value)),
		fieldError(form, name),
	)
}

func textAreaField(form FormState, name, label string, rows string) g.Node {
	return Div(Class("form-group"),
		g.El("label", g.Attr("for", name), g.Text(label)),
		g.El("textarea", ID(name), Name(name), g.Attr("rows", rows), g.Text(form.Value(name))),
		fieldError(form, name),
	)
}

func postForm(action, csrfToken, submitLabel string, fields ...g.Node) g.Node {
	return g.El("form", Method("post"), Action(action), Class("form"),
		csrfField(csrfToken),
		g.Group(fields),
		Button(Type("submit"), Class("button primary"), g.Text(submitLabel)),
	)
}
