package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltmpl "html/template"
	texttmpl "text/template"
)

//go:embed templates/*.gohtml templates/*.txt
var templateFS embed.FS

var subjects = map[string]string{
	"new_comment_for_student": "The teacher commented on the solution",
	"assignment_passed":       "A student submitted their assignment",
	"new_comment_for_teacher": "A student commented on their assignment",
	"new_course_news":         "Course news updated",
	"deadline_changed":        "Homework deadline updated",
	"new_assignment":          "New assignment posted",
	"project_period_starts":   "Project report submission opens soon",
	"project_deadline_soon":   "Project report deadline is tomorrow",
	"new_project_report":      "New project report submitted",
	"new_report_comment":      "New comment on a project report",
	"enrollment_confirmed":    "You are enrolled in the course",
	"survey_published":        "A course survey is available",
	"alumni_promoted":         "Welcome to the alumni community",
}

// Renderer turns a template selector and its context into a Message body.
type Renderer struct {
	html *htmltmpl.Template
	text *texttmpl.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	html, err := htmltmpl.New("email").Option("missingkey=zero").ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	text, err := texttmpl.New("email").Option("missingkey=zero").ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Renderer{html: html, text: text}, nil
}

// Has reports whether name is a known template.
func (r *Renderer) Has(name string) bool {
	_, ok := subjects[name]
	return ok
}

// Render builds the message for name. Subjects of course-scoped messages
// are prefixed with "[<course name>]".
func (r *Renderer) Render(name string, to Address, data map[string]interface{}) (Message, error) {
	subject, ok := subjects[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", name)
	}
	if course, _ := data["course_name"].(string); course != "" {
		subject = fmt.Sprintf("[%s] %s", course, subject)
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := r.html.ExecuteTemplate(&htmlBuf, name+".gohtml", data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", name, err)
	}
	if err := r.text.ExecuteTemplate(&textBuf, name+".txt", data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", name, err)
	}

	return Message{To: to, Subject: subject, HTML: htmlBuf.String(), Text: textBuf.String()}, nil
}
