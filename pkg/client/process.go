package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vitwang05/lexreview/pkg/models"
	"github.com/vitwang05/lexreview/pkg/protocol"
)

// ProcessParams are the query parameters of POST /process.
type ProcessParams struct {
	FilePath  string
	StartPage int
	EndPage   int
	Mode      string
}

// Process submits an uploaded file for analysis and returns the normalized result set.
// Requires a session. Exactly one request is sent; failures are not retried.
func (c *Client) Process(ctx context.Context, p ProcessParams) (*models.ResultSet, error) {
	const op = "process"
	if err := c.requireSession(op); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.longTimeout)
	defer cancel()

	query := url.Values{
		"file_path":    {p.FilePath},
		"start_page":   {strconv.Itoa(p.StartPage)},
		"end_page":     {strconv.Itoa(p.EndPage)},
		"process_type": {p.Mode},
	}
	req, err := c.newRequest(ctx, http.MethodPost, protocol.PathProcess, query, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return readResultSet(op, resp.Body)
}

// GenerateDocx asks the backend to render a persisted result set as a document and
// returns the document stream. The caller must close it. Requires a session.
func (c *Client) GenerateDocx(ctx context.Context, name string) (io.ReadCloser, error) {
	const op = "generate docx"
	if err := c.requireSession(op); err != nil {
		return nil, err
	}

	body, err := json.Marshal(protocol.GenerateDocxRequest{Filename: name})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.longTimeout)
	req, err := c.newRequest(ctx, http.MethodPost, protocol.PathGenerateDocx, nil, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.do(op, req)
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}
