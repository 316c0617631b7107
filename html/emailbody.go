package html

import (
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"strings"

	"github.com/Masterminds/sprig/v3"
)

// TemplateName identifies one of the page templates in the template
// directory.
type TemplateName string

const (
	VerificationCode TemplateName = "verification_code"
	ResetPassword    TemplateName = "reset_password"
)

// Paths of the shared templates every page is parsed with, relative to the
// template directory.
const (
	stylesPath = "partials/styles.html"
	basePath   = "layouts/base.html"
)

var (
	// ErrTemplateLoad means a template file is missing or can't be parsed.
	ErrTemplateLoad = errors.New("can't load the email templates")
	// ErrRender means the templates loaded but couldn't be executed with
	// the given data.
	ErrRender = errors.New("can't render the email body")
	// ErrNoFirstName means the recipient's name has nothing to greet them
	// by. Wraps ErrRender.
	ErrNoFirstName = fmt.Errorf("%w: the recipient name has no first name", ErrRender)
)

// Renderer populates page templates from a template directory. It keeps no
// state besides the directory, so templates are read and parsed again on
// every call and edits on disk show up in the next email.
type Renderer struct {
	fsys fs.FS
}

// NewRenderer returns a Renderer reading templates from fsys, which must
// contain <name>.html for each TemplateName plus the shared partial and
// layout.
func NewRenderer(fsys fs.FS) *Renderer {
	return &Renderer{fsys: fsys}
}

// NewDirRenderer returns a Renderer for the template directory at dir.
func NewDirRenderer(dir string) *Renderer {
	return NewRenderer(os.DirFS(dir))
}

// FirstName returns the first whitespace-delimited token of name, or an
// error if there isn't one.
func FirstName(name string) (string, error) {
	f := strings.Fields(name)
	if len(f) == 0 {
		return "", ErrNoFirstName
	}
	return f[0], nil
}

// templateFile returns the path of a page template.
func templateFile(name TemplateName) string {
	return string(name) + ".html"
}

// load parses the page template name along with the shared partial and
// layout.
func (r *Renderer) load(name TemplateName) (*template.Template, error) {
	if name == "" || strings.ContainsAny(string(name), `/\`) {
		return nil, fmt.Errorf("%w: invalid template name %q", ErrTemplateLoad, name)
	}
	tmpl, err := template.New(templateFile(name)).
		Funcs(sprig.FuncMap()).
		ParseFS(r.fsys, templateFile(name), stylesPath, basePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateLoad, err)
	}
	return tmpl, nil
}

// Render produces the HTML body for the page template name, greeting the
// recipient by the first token of recipientName and linking to url.
//
// The "subject" the templates see is the template name itself, not the
// subject line of the message.
func (r *Renderer) Render(name TemplateName, recipientName string, url string) (string, error) {
	first, err := FirstName(recipientName)
	if err != nil {
		return "", err
	}

	tmpl, err := r.load(name)
	if err != nil {
		return "", err
	}

	data := map[string]interface{}{
		"first_name": first,
		"subject":    string(name),
		"url":        url,
	}

	var str strings.Builder
	if err := tmpl.ExecuteTemplate(&str, templateFile(name), data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	return str.String(), nil
}

// Body for password reset notices sent without a template directory. Kept
// minimal so that it renders in any client.
const resetLinkHTML = `<p>Hi,</p>
<p>You requested a password reset. Click the link below to reset your password:</p>
<p><a href="{{ . }}">Reset Password</a></p>
<p>If you did not request this, please ignore this email.</p>`

// The template text is constant, so parsing can only fail on a programming
// error.
var resetLinkTemplate = template.Must(template.New("reset-link").Parse(resetLinkHTML))

// RenderResetLink produces the minimal password reset body linking to url.
func RenderResetLink(url string) (string, error) {
	var str strings.Builder
	if err := resetLinkTemplate.Execute(&str, url); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	return str.String(), nil
}
