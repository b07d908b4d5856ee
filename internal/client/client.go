package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/soaringjerry/Formly/internal/services"
)

const maxErrorBody = 64 << 10

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status          int
	Code            string
	Message         string
	Field           string
	ExpectedVersion int
	CurrentVersion  int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("formly: http %d", e.Status)
	}
	return fmt.Sprintf("formly: %s (%d)", e.Message, e.Status)
}

func (e *APIError) IsConflict() bool     { return e.Status == http.StatusConflict }
func (e *APIError) IsNotFound() bool     { return e.Status == http.StatusNotFound }
func (e *APIError) IsUnauthorized() bool { return e.Status == http.StatusUnauthorized }
func (e *APIError) IsForbidden() bool    { return e.Status == http.StatusForbidden }
func (e *APIError) IsValidation() bool   { return e.Status == http.StatusBadRequest }

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Client is a typed client for the Formly REST API.
type Client struct {
	base    *url.URL
	http    *http.Client
	session *Session
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL string, session *Session, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if session == nil {
		session = NewSession("")
	}
	c := &Client{base: u, http: &http.Client{Timeout: 30 * time.Second}, session: session}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) Session() *Session { return c.session }

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("parse path: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.ResolveReference(ref).String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.session.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	ae := &APIError{Status: resp.StatusCode}
	var body struct {
		Error struct {
			Code            string `json:"code"`
			Message         string `json:"message"`
			Field           string `json:"field"`
			ExpectedVersion int    `json:"expected_version"`
			CurrentVersion  int    `json:"current_version"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if json.Unmarshal(raw, &body) == nil && body.Error.Code != "" {
		ae.Code = body.Error.Code
		ae.Message = body.Error.Message
		ae.Field = body.Error.Field
		ae.ExpectedVersion = body.Error.ExpectedVersion
		ae.CurrentVersion = body.Error.CurrentVersion
	} else {
		ae.Message = http.StatusText(resp.StatusCode)
	}
	return ae
}

type authResult struct {
	Token string         `json:"token"`
	User  *services.User `json:"user"`
}

// Register creates an account and signs the session in.
func (c *Client) Register(ctx context.Context, email, password, name string) (*services.User, error) {
	var res authResult
	in := map[string]string{"email": email, "password": password, "name": name}
	if err := c.do(ctx, http.MethodPost, "api/auth/register", in, &res); err != nil {
		return nil, err
	}
	c.session.set(res.Token, res.User.ID)
	return res.User, nil
}

// Login signs the session in.
func (c *Client) Login(ctx context.Context, email, password string) (*services.User, error) {
	var res authResult
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "api/auth/login", in, &res); err != nil {
		return nil, err
	}
	c.session.set(res.Token, res.User.ID)
	return res.User, nil
}

func (c *Client) GetTemplate(ctx context.Context, id string) (*services.Template, error) {
	var t services.Template
	if err := c.do(ctx, http.MethodGet, "api/templates/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CreateTemplate(ctx context.Context, p services.TemplatePayload) (*services.Template, error) {
	var t services.Template
	if err := c.do(ctx, http.MethodPost, "api/templates", p, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTemplate sends p with expectedVersion; a stale version comes back as a conflict APIError.
func (c *Client) UpdateTemplate(ctx context.Context, id string, expectedVersion int, p services.TemplatePayload) (*services.Template, error) {
	in := struct {
		Version int `json:"version"`
		services.TemplatePayload
	}{expectedVersion, p}
	var t services.Template
	if err := c.do(ctx, http.MethodPut, "api/templates/"+url.PathEscape(id), in, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) MoveQuestion(ctx context.Context, id string, from, to, expectedVersion int) (*services.Template, error) {
	in := map[string]int{"from": from, "to": to, "version": expectedVersion}
	var t services.Template
	if err := c.do(ctx, http.MethodPost, "api/templates/"+url.PathEscape(id)+"/order/move", in, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "api/templates/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListTemplates(ctx context.Context, q services.ListQuery) ([]*services.Template, error) {
	v := url.Values{}
	if q.TopicID != "" {
		v.Set("topic", q.TopicID)
	}
	if q.Tag != "" {
		v.Set("tag", q.Tag)
	}
	if q.Mine {
		v.Set("mine", "true")
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "api/templates"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out struct {
		Templates []*services.Template `json:"templates"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Templates, nil
}

func (c *Client) SubmitResponse(ctx context.Context, templateID string, answers map[string]any) (*services.Response, error) {
	var r services.Response
	in := map[string]any{"answers": answers}
	if err := c.do(ctx, http.MethodPost, "api/templates/"+url.PathEscape(templateID)+"/responses", in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveDraft autosaves editor state; use services.NewTemplateDraftID for unsaved templates.
func (c *Client) SaveDraft(ctx context.Context, templateID string, payload any, baseVersion int) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	in := services.Draft{Payload: raw, BaseVersion: baseVersion}
	return c.do(ctx, http.MethodPut, "api/templates/"+url.PathEscape(templateID)+"/draft", in, nil)
}

func (c *Client) LoadDraft(ctx context.Context, templateID string) (*services.Draft, error) {
	var d services.Draft
	if err := c.do(ctx, http.MethodGet, "api/templates/"+url.PathEscape(templateID)+"/draft", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
