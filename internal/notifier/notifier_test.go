package notifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/models"
)

func strPtr(s string) *string { return &s }

func configured() models.Backup {
	return models.Backup{
		TelegramBotToken: strPtr("123:secret-token"),
		TelegramChatID:   strPtr("-100200"),
	}
}

func TestSendDocument(t *testing.T) {
	var gotPath, gotChat, gotCaption, gotName, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
		}
		gotChat = r.FormValue("chat_id")
		gotCaption = r.FormValue("caption")
		file, header, err := r.FormFile("document")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
		} else {
			gotName = header.Filename
			data, _ := io.ReadAll(file)
			gotBody = string(data)
		}
		w.Write([]byte(`{"ok": true, "result": {}}`))
	}))
	defer server.Close()

	n := NewWithBaseURL(server.URL)
	err := n.SendDocument(context.Background(), configured(), "habits.json", "backup", []byte(`{"habits": []}`))
	if err != nil {
		t.Fatalf("SendDocument() error = %v", err)
	}

	if gotPath != "/bot123:secret-token/sendDocument" {
		t.Errorf("path = %q", gotPath)
	}
	if gotChat != "-100200" {
		t.Errorf("chat_id = %q", gotChat)
	}
	if gotCaption != "backup" {
		t.Errorf("caption = %q", gotCaption)
	}
	if gotName != "habits.json" {
		t.Errorf("filename = %q", gotName)
	}
	if gotBody != `{"habits": []}` {
		t.Errorf("document = %q", gotBody)
	}
}

func TestSendDocumentFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"api error", http.StatusBadRequest, `{"ok": false, "description": "Bad Request: chat not found"}`, "chat not found"},
		{"not ok", http.StatusOK, `{"ok": false}`, "status 200"},
		{"server error", http.StatusBadGateway, `upstream down`, "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := NewWithBaseURL(server.URL).SendDocument(context.Background(), configured(), "a.json", "", []byte("{}"))
			if !errors.Is(err, beavererrors.ErrExternalTransport) {
				t.Fatalf("error = %v, want ErrExternalTransport", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantMsg)
			}
			if strings.Contains(err.Error(), "secret-token") {
				t.Errorf("error leaks the bot token: %q", err)
			}
		})
	}
}

func TestSendDocumentNotConfigured(t *testing.T) {
	err := New().SendDocument(context.Background(), models.Backup{}, "a.json", "", nil)
	if !errors.Is(err, beavererrors.ErrExternalTransport) {
		t.Errorf("error = %v, want ErrExternalTransport", err)
	}
}

func TestSendDocumentUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := server.URL
	server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := NewWithBaseURL(base).SendDocument(ctx, configured(), "a.json", "", []byte("{}"))
	if !errors.Is(err, beavererrors.ErrExternalTransport) {
		t.Fatalf("error = %v, want ErrExternalTransport", err)
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Errorf("error leaks the bot token: %q", err)
	}
}

func TestNewUsesExternalTimeout(t *testing.T) {
	n := New()
	if n.client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", n.client.Timeout)
	}
	if n.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q", n.baseURL)
	}
}
