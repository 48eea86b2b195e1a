package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"courier/internal/config"
	"courier/internal/transfer"
)

// HTTPDoer describes the HTTP client used by the source service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrExpiredReference indicates the service's cached file reference went
// stale; the caller may retry after re-resolving the message.
var ErrExpiredReference = errors.New("file reference expired")

// ErrNotFound indicates the chat or message does not exist or is not visible
// to the session.
var ErrNotFound = errors.New("message not found")

// ErrUnauthorized indicates the credential was rejected.
var ErrUnauthorized = errors.New("credential rejected")

// RateLimitError carries the server-mandated wait before the next attempt.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.Wait)
}

// Item describes one message payload as reported by the source service.
type Item struct {
	Kind     transfer.Kind `json:"-"`
	RawKind  string        `json:"kind"`
	FileName string        `json:"file_name"`
	Size     int64         `json:"size"`
	MIMEType string        `json:"mime_type"`
	Caption  string        `json:"caption"`
	Text     string        `json:"text"`
}

// ProgressFunc observes transfer position. Returning an error aborts the
// transfer; transfers use this for cooperative cancellation.
type ProgressFunc func(transferred, total int64) error

// Client talks to the content service's REST surface. Metadata calls use a
// short timeout; content streams use the configured download timeout.
type Client struct {
	baseURL  string
	meta     HTTPDoer
	download *http.Client
}

// NewClient constructs a source client from configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.Source.BaseURL), "/"),
		meta:     &http.Client{Timeout: time.Duration(cfg.Source.RequestTimeout) * time.Second},
		download: &http.Client{Timeout: time.Duration(cfg.Source.DownloadTimeout) * time.Second},
	}
}

// NewClientWithDoer constructs a client around an explicit HTTP doer.
// Intended for tests.
func NewClientWithDoer(baseURL string, doer HTTPDoer) *Client {
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		meta:     doer,
		download: http.DefaultClient,
	}
}

// Me verifies the token against the service's identity endpoint.
func (c *Client) Me(ctx context.Context, token string) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/me", token, nil)
	if err != nil {
		return err
	}
	resp, err := c.meta.Do(req)
	if err != nil {
		return fmt.Errorf("identity check: %w", err)
	}
	defer drain(resp)
	return classifyStatus(resp)
}

// Message fetches payload metadata for one source message.
func (c *Client) Message(ctx context.Context, token, chatID string, messageID int64) (*Item, error) {
	path := fmt.Sprintf("/v1/chats/%s/messages/%d", url.PathEscape(chatID), messageID)
	req, err := c.newRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.meta.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch message %d: %w", messageID, err)
	}
	defer drain(resp)
	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	var item Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("decode message %d: %w", messageID, err)
	}
	item.Kind = transfer.ParseKind(item.RawKind)
	return &item, nil
}

// Download streams the payload of one message into destPath, reporting
// position through progress. It returns the byte count written.
func (c *Client) Download(ctx context.Context, token, chatID string, messageID int64, destPath string, progress ProgressFunc) (int64, error) {
	path := fmt.Sprintf("/v1/chats/%s/messages/%d/content", url.PathEscape(chatID), messageID)
	req, err := c.newRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.download.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download message %d: %w", messageID, err)
	}
	defer drain(resp)
	if err := classifyStatus(resp); err != nil {
		return 0, err
	}

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create spool file: %w", err)
	}
	defer out.Close()

	written, err := copyWithProgress(out, resp.Body, resp.ContentLength, progress)
	if err != nil {
		return written, err
	}
	if err := out.Sync(); err != nil {
		return written, fmt.Errorf("sync spool file: %w", err)
	}
	return written, nil
}

// Upload streams a spooled file to the destination chat, preserving the
// payload descriptor.
func (c *Client) Upload(ctx context.Context, token string, destChat int64, item *Item, filePath string, progress ProgressFunc) error {
	in, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open spool file: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat spool file: %w", err)
	}

	body := &progressReader{reader: in, total: info.Size(), progress: progress}
	path := fmt.Sprintf("/v1/chats/%d/messages", destChat)
	req, err := c.newRequest(ctx, http.MethodPost, path, token, body)
	if err != nil {
		return err
	}
	req.ContentLength = info.Size()
	if item.MIMEType != "" {
		req.Header.Set("Content-Type", item.MIMEType)
	} else {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	req.Header.Set("X-Courier-Kind", string(item.Kind))
	if item.FileName != "" {
		req.Header.Set("X-Courier-File-Name", item.FileName)
	}
	if item.Caption != "" {
		req.Header.Set("X-Courier-Caption", item.Caption)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return fmt.Errorf("upload to chat %d: %w", destChat, err)
	}
	defer drain(resp)
	return classifyStatus(resp)
}

// SendText relays a plain text message to the destination chat.
func (c *Client) SendText(ctx context.Context, token string, destChat int64, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode text payload: %w", err)
	}
	path := fmt.Sprintf("/v1/chats/%d/messages", destChat)
	req, err := c.newRequest(ctx, http.MethodPost, path, token, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.meta.Do(req)
	if err != nil {
		return fmt.Errorf("send text to chat %d: %w", destChat, err)
	}
	defer drain(resp)
	return classifyStatus(resp)
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "Courier-Go/0.1.0")
	return req, nil
}

func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < http.StatusMultipleChoices:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := 30 * time.Second
		if raw := resp.Header.Get("Retry-After"); raw != "" {
			if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
				wait = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{Wait: wait}
	case resp.StatusCode == http.StatusGone:
		return ErrExpiredReference
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("source returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

const copyChunkSize = 64 * 1024

func copyWithProgress(dst io.Writer, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, copyChunkSize)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return written, fmt.Errorf("write payload: %w", writeErr)
			}
			written += int64(n)
			if progress != nil {
				if err := progress(written, total); err != nil {
					return written, err
				}
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("read payload: %w", readErr)
		}
	}
}

type progressReader struct {
	reader   io.Reader
	total    int64
	read     int64
	progress ProgressFunc
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.read += int64(n)
		if r.progress != nil {
			if progressErr := r.progress(r.read, r.total); progressErr != nil {
				return n, progressErr
			}
		}
	}
	return n, err
}
