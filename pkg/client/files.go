package client

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/vitwang05/lexreview/pkg/models"
	"github.com/vitwang05/lexreview/pkg/protocol"
	"github.com/vitwang05/lexreview/pkg/resulttree"
	"github.com/vitwang05/lexreview/pkg/retry"
)

// ListFiles fetches the files of one category ("temp" for subject documents, "vbpl"
// for the reference corpus). Order is the backend's order.
func (c *Client) ListFiles(ctx context.Context, category string) ([]models.FileRecord, error) {
	var resp protocol.FileListResponse
	err := c.getJSON(ctx, "list files", protocol.PathFiles, url.Values{"directory": {category}}, &resp)
	if err != nil {
		return nil, err
	}

	entries := resp[category]
	files := make([]models.FileRecord, 0, len(entries))
	for _, e := range entries {
		files = append(files, models.FileRecord{
			Name:     e.Name,
			Path:     e.Path,
			Size:     e.Size,
			Modified: unixTime(e.Modified),
		})
	}
	return files, nil
}

// DeleteFile removes a file by path. Requires a session.
func (c *Client) DeleteFile(ctx context.Context, path string) error {
	const op = "delete file"
	if err := c.requireSession(op); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodDelete, protocol.PathFiles, url.Values{"path": {path}}, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(op, req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// Learn asks the backend to index a corpus file. Requires a session.
func (c *Client) Learn(ctx context.Context, path string) error {
	const op = "learn"
	if err := c.requireSession(op); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.longTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, protocol.PathLearn, url.Values{"file_path": {path}}, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(op, req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// ListResults fetches the persisted result sets in backend order.
func (c *Client) ListResults(ctx context.Context) ([]models.ResultFileRecord, error) {
	var entries []protocol.ResultFileEntry
	if err := c.getJSON(ctx, "list results", protocol.PathProcessResults, nil, &entries); err != nil {
		return nil, err
	}

	records := make([]models.ResultFileRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, models.ResultFileRecord{
			Filename:  e.Filename,
			Modified:  unixTime(e.ModifiedTime),
			Timestamp: e.Timestamp,
		})
	}
	return records, nil
}

// GetResult fetches one persisted result set by name. A missing set yields a
// StatusError with code 404 (see IsNotFound).
func (c *Client) GetResult(ctx context.Context, name string) (*models.ResultSet, error) {
	const op = "get result"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return retryResult(ctx, c, op, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, protocol.PathProcessResults+"/"+url.PathEscape(name), nil, nil)
	})
}

func retryResult(ctx context.Context, c *Client, op string, build func() (*http.Request, error)) (*models.ResultSet, error) {
	return retry.Do(ctx, c.retryConfig, func() (*models.ResultSet, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := c.do(op, req)
		if err != nil {
			return nil, transient(err)
		}
		defer resp.Body.Close()

		return readResultSet(op, resp.Body)
	})
}

func readResultSet(op string, r io.Reader) (*models.ResultSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	set, err := resulttree.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return set, nil
}

func unixTime(secs float64) time.Time {
	if secs <= 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9))
}
