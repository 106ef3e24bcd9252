package mail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRendererPrefixesCourseName(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	msg, err := r.Render("new_comment_for_teacher", Address{Name: "Alice", Email: "alice@example.com"}, map[string]interface{}{
		"course_name":     "Algorithms",
		"student_name":    "Sam",
		"assignment_name": "Heaps",
		"link":            "https://lms.example.com/a/1",
	})
	require.NoError(t, err)
	assert.Equal(t, "[Algorithms] A student commented on their assignment", msg.Subject)
	assert.Contains(t, msg.Text, "Sam left a comment on \"Heaps\"")
	assert.Contains(t, msg.HTML, `href="https://lms.example.com/a/1"`)
	assert.Equal(t, "alice@example.com", msg.To.Email)
}

func TestRendererEscapesHTML(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	msg, err := r.Render("new_course_news", Address{Email: "s@example.com"}, map[string]interface{}{
		"course_name":      "Databases",
		"course_news_name": "<b>Exam</b>",
		"course_news_text": "moved",
	})
	require.NoError(t, err)
	assert.Equal(t, "[Databases] Course news updated", msg.Subject)
	assert.NotContains(t, msg.HTML, "<b>Exam</b>")
}

func TestRendererUnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render("missing", Address{Email: "x@example.com"}, nil)
	assert.Error(t, err)
	assert.False(t, r.Has("missing"))
	assert.True(t, r.Has("deadline_changed"))
}

func TestRendererEveryTemplateRenders(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	for name := range subjects {
		msg, err := r.Render(name, Address{Email: "x@example.com"}, map[string]interface{}{})
		require.NoError(t, err, name)
		assert.NotEmpty(t, msg.Text, name)
		assert.NotEmpty(t, msg.HTML, name)
	}
}

func TestConsoleSenderRecordsMessages(t *testing.T) {
	c := NewConsoleSender(nil)
	require.NoError(t, c.Send(context.Background(), Message{To: Address{Email: "a@example.com"}, Subject: "hi", Text: "body"}))
	assert.ErrorIs(t, c.Send(context.Background(), Message{Subject: "no one"}), ErrNoRecipient)
	require.Len(t, c.Sent(), 1)
	assert.Equal(t, "hi", c.Sent()[0].Subject)
}

func TestBuildMsgRejectsBadAddress(t *testing.T) {
	_, err := buildMsg(Address{Email: "not-an-address"}, Message{To: Address{Email: "a@example.com"}, Text: "x"})
	assert.Error(t, err)
}
