// Package notifier ships habit list backups to a Telegram chat through the
// Bot API.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/logger"
	"github.com/julianstephens/beaver/internal/models"
)

const DefaultBaseURL = "https://api.telegram.org"

type Notifier struct {
	baseURL string
	client  *http.Client
}

// apiResponse is the envelope every Bot API method returns.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func New() *Notifier {
	return NewWithBaseURL(DefaultBaseURL)
}

// NewWithBaseURL points the notifier at another Bot API host.
func NewWithBaseURL(baseURL string) *Notifier {
	return &Notifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: constants.ExternalTimeout},
	}
}

// SendDocument uploads data as a file named filename to the chat configured
// in b. Every failure wraps ErrExternalTransport; the bot token never
// appears in the returned error.
func (n *Notifier) SendDocument(ctx context.Context, b models.Backup, filename, caption string, data []byte) error {
	if !b.Configured() {
		return fmt.Errorf("%w: telegram backup is not configured", beavererrors.ErrExternalTransport)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", *b.TelegramChatID); err != nil {
		return err
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("document", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendDocument", n.baseURL, *b.TelegramBotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return fmt.Errorf("%w: failed to build request", beavererrors.ErrExternalTransport)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Request-Id", requestID)

	logger.Debug("Uploading backup to Telegram", "request_id", requestID, "file", filename, "bytes", len(data))
	return n.do(req)
}

func (n *Notifier) do(req *http.Request) error {
	res, err := n.client.Do(req)
	if err != nil {
		// url.Error carries the request URL, which embeds the token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("%w: %v", beavererrors.ErrExternalTransport, err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	var out apiResponse
	_ = json.Unmarshal(raw, &out)

	if res.StatusCode == http.StatusOK && out.OK {
		return nil
	}
	reason := out.Description
	if reason == "" {
		reason = strings.TrimSpace(string(raw))
	}
	return fmt.Errorf("%w: telegram responded with status %d: %s", beavererrors.ErrExternalTransport, res.StatusCode, reason)
}
