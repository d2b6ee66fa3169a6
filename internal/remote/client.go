// Package remote talks to the chat backend over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/set-night/sofia/internal/config"
	"github.com/set-night/sofia/internal/domain"
)

type Client struct {
	baseURL    string
	cookie     string
	httpClient *http.Client
	cache      *ChatsCache
}

func NewClient(baseURL, cookie string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cookie:     cookie,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		cache:      NewChatsCache(config.ChatListCacheDuration),
	}
}

type wireAttachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Data string `json:"data,omitempty"`
}

type wireMessage struct {
	Text        string           `json:"text"`
	Sender      string           `json:"sender"`
	Attachments []wireAttachment `json:"attachments,omitempty"`
	Mode        string           `json:"mode,omitempty"`
}

type wireChat struct {
	ID       string        `json:"id,omitempty"`
	Title    string        `json:"title"`
	Messages []wireMessage `json:"messages"`
}

type chatRequest struct {
	Text        string           `json:"text"`
	Attachments []wireAttachment `json:"attachments"`
	FileData    string           `json:"fileData,omitempty"`
	FileType    string           `json:"fileType,omitempty"`
	Mode        string           `json:"mode,omitempty"`
	IsTemporary bool             `json:"isTemporary"`
}

// Chat sends one turn and returns the assistant's text, which may be empty.
func (c *Client) Chat(ctx context.Context, r domain.ChatRequest) (string, error) {
	body := chatRequest{
		Text:        r.Text,
		Attachments: make([]wireAttachment, 0, len(r.Attachments)),
		Mode:        string(r.Mode),
		IsTemporary: r.IsTemporary,
	}
	for _, a := range r.Attachments {
		body.Attachments = append(body.Attachments, wireAttachment{
			Name: a.Name, Type: a.MimeType, Size: a.SizeBytes, Data: a.Payload,
		})
	}
	// Older backends only read a single inline file.
	if len(r.Attachments) == 1 {
		body.FileData = r.Attachments[0].DataURL()
		body.FileType = r.Attachments[0].MimeType
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := c.do(ctx, "chat", http.MethodPost, "/chat", body, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// SaveChat creates the chat when s.ID is empty and updates it otherwise.
// Attachment payloads are not stored.
func (c *Client) SaveChat(ctx context.Context, s domain.Session) (domain.ChatSummary, error) {
	body := wireChat{ID: s.ID, Title: s.Title, Messages: toWire(s.Messages)}

	var out struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := c.do(ctx, "save chat", http.MethodPost, "/api/chats", body, &out); err != nil {
		return domain.ChatSummary{}, err
	}
	c.cache.Invalidate()
	return domain.ChatSummary{ID: out.ID, Title: out.Title}, nil
}

// ListChats returns saved chats with transcripts, served from cache when fresh.
func (c *Client) ListChats(ctx context.Context) ([]domain.Session, error) {
	if cached := c.cache.Get(); cached != nil {
		return cached, nil
	}

	var out []wireChat
	if err := c.do(ctx, "list chats", http.MethodGet, "/api/chats", nil, &out); err != nil {
		return nil, err
	}

	chats := make([]domain.Session, 0, len(out))
	for _, w := range out {
		msgs, err := fromWire(w.Messages)
		if err != nil {
			slog.Warn("skip unreadable chat", "chat_id", w.ID, "error", err)
			continue
		}
		chats = append(chats, domain.Session{ID: w.ID, Title: w.Title, Messages: msgs})
	}
	c.cache.Set(chats)
	return chats, nil
}

func (c *Client) DeleteChat(ctx context.Context, id string) error {
	if err := c.do(ctx, "delete chat", http.MethodDelete, "/api/chats/"+url.PathEscape(id), nil, nil); err != nil {
		return err
	}
	c.cache.Invalidate()
	return nil
}

func (c *Client) RenameChat(ctx context.Context, id, title string) error {
	body := map[string]string{"title": title}
	if err := c.do(ctx, "rename chat", http.MethodPut, "/api/chats/"+url.PathEscape(id), body, nil); err != nil {
		return err
	}
	c.cache.Invalidate()
	return nil
}

func (c *Client) PostFeedback(ctx context.Context, chatID string, index int, j domain.Judgment) error {
	body := struct {
		ChatID       string `json:"chat_id"`
		MessageIndex int    `json:"message_index"`
		FeedbackType string `json:"feedback_type"`
	}{chatID, index, string(j)}

	var out struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, "post feedback", http.MethodPost, "/api/feedback", body, &out); err != nil {
		return err
	}
	if !out.Success {
		return &domain.TransportError{Op: "post feedback", Err: fmt.Errorf("backend refused feedback")}
	}
	return nil
}

func (c *Client) FetchFeedback(ctx context.Context, chatID string) ([]domain.FeedbackEntry, error) {
	var out []struct {
		MessageIndex int    `json:"message_index"`
		FeedbackType string `json:"feedback_type"`
	}
	path := "/api/feedback?chat_id=" + url.QueryEscape(chatID)
	if err := c.do(ctx, "fetch feedback", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	entries := make([]domain.FeedbackEntry, 0, len(out))
	for _, f := range out {
		j, err := domain.ParseJudgment(f.FeedbackType)
		if err != nil {
			return nil, fmt.Errorf("parse feedback: %w", err)
		}
		entries = append(entries, domain.FeedbackEntry{SequenceIndex: f.MessageIndex, Judgment: j})
	}
	return entries, nil
}

func (c *Client) UpdateUsage(ctx context.Context, counter domain.Counter) error {
	body := map[string]string{"type": string(counter)}
	return c.do(ctx, "update usage", http.MethodPost, "/update_usage", body, nil)
}

// UploadLibrary stores a decoded attachment in the user's file library.
func (c *Client) UploadLibrary(ctx context.Context, a domain.Attachment) error {
	data, err := base64.StdEncoding.DecodeString(a.Payload)
	if err != nil {
		return fmt.Errorf("decode attachment: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", a.Name)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/library/upload", &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.send(req, "upload library", nil)
}

// EvaluateCyber grades how the user handled a scam simulation transcript.
func (c *Client) EvaluateCyber(ctx context.Context, msgs []domain.Message, level domain.CyberLevel) (domain.CyberReport, error) {
	body := struct {
		Messages []wireMessage `json:"messages"`
		Level    string        `json:"level"`
	}{toWire(msgs), level.String()}

	var out struct {
		Score    *int     `json:"score"`
		Verdict  string   `json:"verdict"`
		Analysis string   `json:"analysis"`
		Tips     []string `json:"tips"`
	}
	if err := c.do(ctx, "evaluate cyber", http.MethodPost, "/api/cyber/evaluate", body, &out); err != nil {
		return domain.CyberReport{}, err
	}
	if out.Score == nil {
		return domain.CyberReport{}, &domain.TransportError{Op: "evaluate cyber", Err: fmt.Errorf("report has no score")}
	}
	return domain.CyberReport{
		Score:    *out.Score,
		Verdict:  out.Verdict,
		Analysis: out.Analysis,
		Tips:     out.Tips,
	}, nil
}

// UserInfo fetches the signed-in account with its usage counters.
func (c *Client) UserInfo(ctx context.Context) (domain.Account, error) {
	var out struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		IsPremium   bool   `json:"isPremium"`
		IsAdmin     bool   `json:"isAdmin"`
		UsageCounts struct {
			Messages    int `json:"messages"`
			WebSearches int `json:"webSearches"`
		} `json:"usageCounts"`
	}
	if err := c.do(ctx, "get user info", http.MethodGet, "/get_user_info", nil, &out); err != nil {
		return domain.Account{}, err
	}
	return domain.Account{
		Name:      out.Name,
		Email:     out.Email,
		IsPremium: out.IsPremium,
		IsAdmin:   out.IsAdmin,
		Usage: domain.UsageCounters{
			MessagesUsed:    out.UsageCounts.Messages,
			WebSearchesUsed: out.UsageCounts.WebSearches,
		},
	}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, op, out)
}

func (c *Client) send(req *http.Request, op string, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &domain.TransportError{Op: op, Status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &domain.TransportError{Op: op, Err: fmt.Errorf("parse response: %w", err)}
	}
	return nil
}

func toWire(msgs []domain.Message) []wireMessage {
	out := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		w := wireMessage{Text: m.Text, Sender: m.Sender.WireName(), Mode: string(m.Mode)}
		for _, a := range m.Attachments {
			w.Attachments = append(w.Attachments, wireAttachment{Name: a.Name, Type: a.MimeType, Size: a.SizeBytes})
		}
		out[i] = w
	}
	return out
}

func fromWire(msgs []wireMessage) ([]domain.Message, error) {
	out := make([]domain.Message, len(msgs))
	for i, w := range msgs {
		sender, err := domain.ParseSender(w.Sender)
		if err != nil {
			return nil, err
		}
		m := domain.Message{Text: w.Text, Sender: sender, Mode: domain.ParseMode(w.Mode), SequenceIndex: i}
		for _, a := range w.Attachments {
			m.Attachments = append(m.Attachments, domain.Attachment{Name: a.Name, MimeType: a.Type, SizeBytes: a.Size})
		}
		out[i] = m
	}
	return out, nil
}
