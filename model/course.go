package model

import "encoding/json"

// Course is a course entry with its content blocks. Course content is treated
// as immutable for the lifetime of a session.
type Course struct {
	ID         int              `json:"id"`
	Attributes CourseAttributes `json:"attributes"`
}

type CourseAttributes struct {
	Title          string              `json:"title"`
	Locale         string              `json:"locale,omitempty"`
	Content        []Content           `json:"content,omitempty"`
	CourseCategory *Relation[Category] `json:"coursecategory,omitempty"`
	CreatedAt      string              `json:"createdAt,omitempty"`
	UpdatedAt      string              `json:"updatedAt,omitempty"`
	PublishedAt    string              `json:"publishedAt,omitempty"`
}

// Content is one dynamic-zone block of a course. Component names the Strapi
// component ("coursecontent.text", "coursecontent.quiz", ...).
type Content struct {
	ID            *int    `json:"id,omitempty"`
	Component     string  `json:"__component"`
	Data          string  `json:"data,omitempty"`
	ExternalURL   string  `json:"externalUrl,omitempty"`
	Caption       string  `json:"caption,omitempty"`
	Question      string  `json:"question,omitempty"`
	Options       Options `json:"options,omitempty"`
	CorrectAnswer string  `json:"correctAnswer,omitempty"`
}

type Category struct {
	ID         int                `json:"id"`
	Attributes CategoryAttributes `json:"attributes"`
}

type CategoryAttributes struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Order       *int   `json:"order,omitempty"`
}

// Title is a shortcut for c.Attributes.Title.
func (c Course) Title() string {
	return c.Attributes.Title
}

// CategoryID returns the id of the course's category relation, if populated.
func (c Course) CategoryID() (int, bool) {
	rel := c.Attributes.CourseCategory
	if rel == nil || rel.Data == nil {
		return 0, false
	}
	return rel.Data.ID, true
}

// Options is a list of quiz answers. Authors occasionally store a non-array
// value in the field; it decodes to an empty list rather than failing the
// whole course.
type Options []string

func (o *Options) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		*o = nil
		return nil
	}
	*o = list
	return nil
}
