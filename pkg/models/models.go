// Package models contains the domain types shared by the client and the views.
package models

import "time"

// Role is the access level of an authenticated principal.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the active session: who is logged in and the bearer token they hold.
type Identity struct {
	Principal string    `json:"username"`
	Role      Role      `json:"role"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// IsExpired returns true if the token has a known expiry that falls within margin.
func (id *Identity) IsExpired(margin time.Duration) bool {
	if id.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(id.ExpiresAt)
}

// FileRecord is one entry of a file listing. Path is the unique key.
type FileRecord struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ResultFileRecord points at a persisted result set on the backend.
type ResultFileRecord struct {
	Filename  string    `json:"filename"`
	Modified  time.Time `json:"modified_time"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// Citation is one referenced excerpt. Text is nil when the source carried no content.
type Citation struct {
	Title string  `json:"title"`
	Text  *string `json:"text"`
}

// CitationGroup collects the citations taken from one source document.
type CitationGroup struct {
	Source  string     `json:"source"`
	Entries []Citation `json:"entries"`
}

// ResultNode is one finding of an analysis. Children have the same shape, so the
// tree nests to any depth. Order of Children is the document order.
type ResultNode struct {
	Title     string          `json:"title"`
	Answer    string          `json:"answer,omitempty"`
	Citations []CitationGroup `json:"citations,omitempty"`
	Children  []*ResultNode   `json:"children,omitempty"`
}

// ResultSet is the output of one analysis submission.
type ResultSet struct {
	ProcessingTime *float64      `json:"process_time,omitempty"`
	Nodes          []*ResultNode `json:"results"`
}
