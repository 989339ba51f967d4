// Package protocol defines the backend request/response types.
package protocol

import (
	"encoding/json"
	"strings"
)

// Backend endpoints.
const (
	PathLogin          = "/login"
	PathFiles          = "/files"
	PathUploadCorpus   = "/uploadVBPL"
	PathUploadSubject  = "/uploadVBNB"
	PathProcess        = "/process"
	PathLearn          = "/learn"
	PathProcessResults = "/process-results"
	PathGenerateDocx   = "/generate-docx"
)

// LoginResponse is returned by POST /login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// FileEntry is one row of GET /files?directory={category}. Modified is unix seconds.
type FileEntry struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Size     int64   `json:"size"`
	Modified float64 `json:"modified"`
}

// FileListResponse is keyed by the requested category.
type FileListResponse map[string][]FileEntry

// UploadResponse is returned by the upload endpoints. The corpus endpoint may return
// an empty object.
type UploadResponse struct {
	Message  string `json:"message,omitempty"`
	Filename string `json:"filename,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

// ResultFileEntry is one row of GET /process-results.
type ResultFileEntry struct {
	Filename     string  `json:"filename"`
	ModifiedTime float64 `json:"modified_time"`
	Timestamp    string  `json:"timestamp,omitempty"`
}

// GenerateDocxRequest is the body of POST /generate-docx.
type GenerateDocxRequest struct {
	Filename string `json:"filename,omitempty"`
}

// ErrorResponse is the backend error body. Detail is a string for handled errors and a
// list of objects for request validation failures.
type ErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// Message flattens Detail to a single line. Returns "" when no detail was sent.
func (e ErrorResponse) Message() string {
	if len(e.Detail) == 0 || string(e.Detail) == "null" {
		return ""
	}

	var s string
	if json.Unmarshal(e.Detail, &s) == nil {
		return s
	}

	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if json.Unmarshal(e.Detail, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return string(e.Detail)
}
