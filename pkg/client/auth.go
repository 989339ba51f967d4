package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/vitwang05/lexreview/pkg/protocol"
)

// Login exchanges credentials for a bearer token via POST /login (form-encoded).
// No Authorization header is sent. The client does not remember the token; the
// session store does.
func (c *Client) Login(ctx context.Context, username, password string) (*protocol.LoginResponse, error) {
	const op = "login"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{"username": {username}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+protocol.PathLogin, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result protocol.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parse login response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("login response carried no access token")
	}
	return &result, nil
}
