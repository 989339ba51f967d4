package client

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/vitwang05/lexreview/internal/metrics"
	"github.com/vitwang05/lexreview/pkg/protocol"
)

// ProgressFunc receives the number of bytes of file content sent so far and the
// total, which is 0 when unknown.
type ProgressFunc func(sent, total int64)

// Upload sends one file as multipart form field "file" to endpoint (PathUploadSubject
// or PathUploadCorpus). Requires a session. Never retried: a partially sent upload is
// reported as a failure.
func (c *Client) Upload(ctx context.Context, endpoint, name string, content io.Reader, size int64, progress ProgressFunc) (*protocol.UploadResponse, error) {
	const op = "upload"
	if err := c.requireSession(op); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.longTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, &progressReader{r: content, total: size, fn: progress})
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	metrics.RecordUploadBytes(size)

	result := &protocol.UploadResponse{}
	// The corpus endpoint may answer with an empty body.
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil && err != io.EOF {
		return nil, err
	}
	return result, nil
}

type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil {
			p.fn(p.sent, p.total)
		}
	}
	return n, err
}
