package tickets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/apiclient"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/i18n"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/telemetry"
	"github.com/NexiraAI/nexira/pkg/validation"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const ticketJSON = `{
	"ticketNumber": "TKT-2025-0001",
	"subject": "Cannot export",
	"description": "<p>Export <b>fails</b> &amp; hangs</p><script>alert(1)</script>",
	"priority": "High",
	"status": "In Progress",
	"category": "technical",
	"customerName": "Lan Nguyen",
	"customer_email": "lan@example.com",
	"assignedTo": "agent@nexira.ai",
	"responses": [
		{"_id": {"$oid": "r1"}, "authorName": "Support", "message": "Looking", "isStaff": true, "createdAt": "2025-03-01T10:00:00Z",
		 "attachedFiles": [{"s3Key": "tickets/TKT-2025-0001/log.txt", "sizeBytes": 12}]}
	],
	"attached_files": [{"s3_key": "tickets/TKT-2025-0001/a.png", "filename": "a.png", "mime": "image/png", "size_bytes": 10}],
	"created_at": "2025-03-01T09:00:00.000Z"
}`

// =============================================================================
// MAPPING
// =============================================================================

func TestTicket_UnmarshalMixedCase(t *testing.T) {
	var tk Ticket
	require.NoError(t, json.Unmarshal([]byte(ticketJSON), &tk))
	require.NoError(t, tk.Validate())

	assert.Equal(t, "TKT-2025-0001", tk.TicketNumber)
	assert.Equal(t, StatusInProgress, tk.Status)
	assert.Equal(t, PriorityHigh, tk.Priority)
	assert.Equal(t, CategoryTechnical, tk.Category)
	assert.Equal(t, "Lan Nguyen", tk.CustomerName)
	assert.Equal(t, "lan@example.com", tk.CustomerEmail.String())
	assert.Equal(t, "agent@nexira.ai", tk.AssignedTo)
	assert.False(t, tk.CreatedAt.IsZero())

	require.Len(t, tk.Responses, 1)
	r := tk.Responses[0]
	assert.Equal(t, "r1", r.ID.String())
	assert.Equal(t, "Support", r.Author)
	assert.True(t, r.IsStaff)
	require.Len(t, r.AttachedFiles, 1)
	assert.Equal(t, "log.txt", r.AttachedFiles[0].Filename)
	assert.Equal(t, int64(12), r.AttachedFiles[0].SizeBytes)

	require.Len(t, tk.AttachedFiles, 1)
	assert.Equal(t, "image/png", tk.AttachedFiles[0].Mime)
}

func TestTicket_ValidateRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{"missing number", `{"subject":"x","status":"open"}`, "ticket_number"},
		{"missing subject", `{"ticket_number":"T-1","status":"open"}`, "subject"},
		{"missing status", `{"ticket_number":"T-1","subject":"x"}`, "status"},
		{"unknown status", `{"ticket_number":"T-1","subject":"x","status":"frozen"}`, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tk Ticket
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &tk))
			err := tk.Validate()
			require.ErrorIs(t, err, validation.ErrInvalid)
			var verr *validation.Error
			require.True(t, errors.As(err, &verr))
			assert.True(t, verr.HasField(tt.field), "expected %s in %v", tt.field, verr)
		})
	}
}

func TestParseEnums(t *testing.T) {
	tests := []struct {
		in   string
		want Status
		ok   bool
	}{
		{"open", StatusOpen, true},
		{"In Progress", StatusInProgress, true},
		{"in-progress", StatusInProgress, true},
		{"PENDING", StatusWaiting, true},
		{"new", StatusOpen, true},
		{"frozen", "", false},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if tt.ok {
			assert.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, got, tt.in)
		} else {
			assert.ErrorIs(t, err, validation.ErrInvalid, tt.in)
		}
	}

	p, err := ParsePriority("Critical")
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, p)
	_, err = ParseCategory("sales")
	assert.Error(t, err)
}

func TestEnumLabelsAndColors(t *testing.T) {
	en, vi := i18n.New(i18n.English), i18n.New(i18n.Vietnamese)
	for _, s := range Statuses {
		assert.NotEqual(t, "ticket.status."+string(s), s.Label(en), "missing label for %s", s)
		assert.NotEmpty(t, string(s.Color()))
	}
	for _, p := range Priorities {
		assert.NotEqual(t, "ticket.priority."+string(p), p.Label(vi))
	}
	for _, c := range Categories {
		assert.NotEqual(t, "ticket.category."+string(c), c.Label(en))
	}
	assert.Equal(t, "Đang xử lý", StatusInProgress.Label(vi))
	assert.NotEmpty(t, string(Status("weird").Color()))
}

func TestSanitized(t *testing.T) {
	var tk Ticket
	require.NoError(t, json.Unmarshal([]byte(ticketJSON), &tk))
	clean := tk.Sanitized()
	assert.Equal(t, "Export fails & hangs", clean.Description)
	assert.Contains(t, tk.Description, "<script>", "original untouched")
}

// =============================================================================
// FILTER
// =============================================================================

func TestFilter_Conjunction(t *testing.T) {
	list := []Ticket{
		{TicketNumber: "T-1", Subject: "Login broken", Status: StatusOpen, Priority: PriorityHigh},
		{TicketNumber: "T-2", Subject: "Invoice wrong", Status: StatusOpen, Priority: PriorityLow, CustomerEmail: "billing@acme.io"},
		{TicketNumber: "T-3", Subject: "Login slow", Status: StatusClosed, Priority: PriorityHigh},
		{TicketNumber: "T-4", Subject: "Other", Description: "login page", Status: StatusOpen, Priority: PriorityHigh},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"none", Filter{}, []string{"T-1", "T-2", "T-3", "T-4"}},
		{"status", Filter{Status: StatusOpen}, []string{"T-1", "T-2", "T-4"}},
		{"priority", Filter{Priority: PriorityHigh}, []string{"T-1", "T-3", "T-4"}},
		{"search", Filter{Search: "LOGIN"}, []string{"T-1", "T-3", "T-4"}},
		{"status and priority", Filter{Status: StatusOpen, Priority: PriorityHigh}, []string{"T-1", "T-4"}},
		{"all three", Filter{Status: StatusOpen, Priority: PriorityHigh, Search: "broken"}, []string{"T-1"}},
		{"email search", Filter{Search: "acme"}, []string{"T-2"}},
		{"number search", Filter{Search: "t-3"}, []string{"T-3"}},
		{"no match", Filter{Status: StatusClosed, Priority: PriorityLow}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, tk := range tt.filter.Apply(list) {
				got = append(got, tk.TicketNumber)
			}
			assert.Equal(t, tt.want, got)

			// Exhaustive check of the iff against each predicate.
			for _, tk := range list {
				want := (tt.filter.Status == "" || tk.Status == tt.filter.Status) &&
					(tt.filter.Priority == "" || tk.Priority == tt.filter.Priority) &&
					(tt.filter.Search == "" || strings.Contains(strings.ToLower(tk.TicketNumber+"\x00"+tk.Subject+"\x00"+tk.Description+"\x00"+tk.CustomerName+"\x00"+string(tk.CustomerEmail)), strings.ToLower(tt.filter.Search)))
				assert.Equal(t, want, tt.filter.Matches(tk), tk.TicketNumber)
			}
		})
	}
	assert.False(t, Filter{}.Active())
	assert.True(t, Filter{Search: "x"}.Active())
}

// =============================================================================
// CLIENT
// =============================================================================

type backend struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	calls     []string
	presign   presignUploadRequest
	uploads   map[string][]byte
	fields    map[string]map[string]string
	responded *addResponseRequest
	failKey   string
}

func newBackend(t *testing.T) (*backend, *Client, *telemetry.Metrics) {
	t.Helper()
	b := &backend{t: t, uploads: map[string][]byte{}, fields: map[string]map[string]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ticket/my_tickets", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		_, _ = io.WriteString(w, `[`+ticketJSON+`, {"ticket_number": "", "subject": "broken"}]`)
	})
	mux.HandleFunc("GET /ticket/all_tickets", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		_, _ = io.WriteString(w, `{"tickets": [`+ticketJSON+`], "total": 1}`)
	})
	mux.HandleFunc("GET /ticket/{number}", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		if r.PathValue("number") != "TKT-2025-0001" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail": "Ticket not found"}`)
			return
		}
		_, _ = io.WriteString(w, `{"ticket": `+ticketJSON+`}`)
	})
	mux.HandleFunc("POST /ticket/create", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		_, _ = io.WriteString(w, `{"ticket_number": "TKT-2025-0001", "message": "created"}`)
	})
	mux.HandleFunc("POST /ticket/assign", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
	})
	mux.HandleFunc("POST /ticket/update_status", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
	})
	mux.HandleFunc("POST /ticket/file_presign_upload", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		var req presignUploadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		b.mu.Lock()
		b.presign = req
		b.mu.Unlock()

		var resp presignUploadResponse
		for i, f := range req.Files {
			key := fmt.Sprintf("tickets/%s/%d-%s", req.TicketNumber, i, f.Filename)
			resp.Uploads = append(resp.Uploads, presignedUpload{
				URL:    b.srv.URL + "/bucket?X-Amz-Signature=secret",
				Fields: map[string]string{"key": key, "policy": "p"},
				S3Key:  key,
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("POST /bucket", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(apiclient.HeaderUserID), "no identity on presigned upload")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		key := r.FormValue("key")
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)

		b.mu.Lock()
		defer b.mu.Unlock()
		if key == b.failKey {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, "<Error><Code>AccessDenied</Code></Error>")
			return
		}
		b.uploads[key] = data
		b.fields[key] = map[string]string{"policy": r.FormValue("policy")}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /ticket/add_response", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		var req addResponseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		b.mu.Lock()
		b.responded = &req
		b.mu.Unlock()
	})
	mux.HandleFunc("GET /ticket/file_presign_download", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		_ = json.NewEncoder(w).Encode(map[string]string{"url": b.srv.URL + "/bucket/" + r.URL.Query().Get("s3_key")})
	})
	mux.HandleFunc("GET /bucket/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "file-bytes")
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)

	metrics := telemetry.NewMetrics()
	api := apiclient.New(apiclient.Config{
		BaseURL:  b.srv.URL,
		Metrics:  metrics,
		Identity: func() apiclient.Identity { return apiclient.Identity{UserID: "u1", UserName: "Lan"} },
	})
	return b, NewClient(api), metrics
}

func (b *backend) record(r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, r.Method+" "+r.URL.Path)
}

func (b *backend) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func TestClient_ListTickets(t *testing.T) {
	_, client, _ := newBackend(t)
	ctx := context.Background()

	mine, err := client.ListTickets(ctx, ScopeMine)
	require.NoError(t, err)
	require.Len(t, mine, 1, "malformed entry dropped")
	assert.Equal(t, "TKT-2025-0001", mine[0].TicketNumber)

	all, err := client.ListTickets(ctx, ScopeAll)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = client.ListTickets(ctx, Scope("team"))
	assert.ErrorIs(t, err, validation.ErrInvalid)
}

func TestClient_GetTicket(t *testing.T) {
	_, client, _ := newBackend(t)

	tk, err := client.GetTicket(context.Background(), "TKT-2025-0001")
	require.NoError(t, err)
	assert.Equal(t, "Cannot export", tk.Subject)

	_, err = client.GetTicket(context.Background(), "TKT-404")
	require.ErrorIs(t, err, apiclient.ErrNotFound)
	assert.Contains(t, err.Error(), "Ticket not found")

	_, err = client.GetTicket(context.Background(), "../admin")
	assert.ErrorIs(t, err, validation.ErrInvalid)
}

func TestClient_CreateTicket(t *testing.T) {
	b, client, _ := newBackend(t)

	tk, err := client.CreateTicket(context.Background(), CreateRequest{
		Subject:       "Cannot export",
		Description:   "Export fails",
		Priority:      PriorityHigh,
		Category:      CategoryTechnical,
		CustomerEmail: "lan@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "TKT-2025-0001", tk.TicketNumber)
	assert.Equal(t, []string{"POST /ticket/create", "GET /ticket/TKT-2025-0001"}, b.callLog())
}

func TestClient_CreateTicketValidation(t *testing.T) {
	b, client, _ := newBackend(t)
	tests := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{"blank subject", CreateRequest{Subject: " ", Description: "d", Priority: PriorityLow, Category: CategoryGeneral}, "subject"},
		{"bad priority", CreateRequest{Subject: "s", Description: "d", Priority: "meh", Category: CategoryGeneral}, "priority"},
		{"bad email", CreateRequest{Subject: "s", Description: "d", Priority: PriorityLow, Category: CategoryGeneral, CustomerEmail: "nope"}, "customer_email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.CreateTicket(context.Background(), tt.req)
			var verr *validation.Error
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.True(t, verr.HasField(tt.field))
		})
	}
	assert.Empty(t, b.callLog())
}

func TestClient_AssignAndStatus(t *testing.T) {
	b, client, _ := newBackend(t)
	ctx := context.Background()

	_, err := client.AssignTicket(ctx, "TKT-2025-0001", "agent@nexira.ai")
	require.NoError(t, err)
	_, err = client.UpdateStatus(ctx, "TKT-2025-0001", StatusResolved)
	require.NoError(t, err)
	_, err = client.UpdateStatus(ctx, "TKT-2025-0001", Status("frozen"))
	assert.ErrorIs(t, err, validation.ErrInvalid)
	_, err = client.AssignTicket(ctx, "TKT-2025-0001", "  ")
	assert.ErrorIs(t, err, validation.ErrInvalid)

	assert.Equal(t, []string{
		"POST /ticket/assign", "GET /ticket/TKT-2025-0001",
		"POST /ticket/update_status", "GET /ticket/TKT-2025-0001",
	}, b.callLog())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestClient_AddResponseWithAttachments(t *testing.T) {
	b, client, metrics := newBackend(t)
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "notes.txt", "hello attachment"),
		writeFile(t, dir, "data.bin", "\x00\x01\x02binary"),
	}

	_, err := client.AddResponse(context.Background(), "TKT-2025-0001", "See attached", files)
	require.NoError(t, err)

	require.Len(t, b.presign.Files, 2)
	assert.Equal(t, "TKT-2025-0001", b.presign.TicketNumber)
	assert.Equal(t, "notes.txt", b.presign.Files[0].Filename)
	assert.True(t, strings.HasPrefix(b.presign.Files[0].Mime, "text/plain"))
	assert.Equal(t, int64(16), b.presign.Files[0].SizeBytes)

	require.NotNil(t, b.responded)
	assert.Equal(t, "See attached", b.responded.Message)
	require.Len(t, b.responded.AttachedFiles, 2)
	for i, meta := range b.responded.AttachedFiles {
		content, _ := os.ReadFile(files[i])
		sum := sha256.Sum256(content)
		assert.Equal(t, hex.EncodeToString(sum[:]), meta.SHA256, "real digest for %s", meta.Filename)
		assert.Equal(t, content, b.uploads[meta.S3Key])
		assert.Equal(t, "p", b.fields[meta.S3Key]["policy"])
		assert.Equal(t, int64(len(content)), meta.SizeBytes)
	}
	assert.Equal(t, float64(16+9), testutil.ToFloat64(metrics.UploadBytesTotal))

	calls := b.callLog()
	assert.Equal(t, "POST /ticket/file_presign_upload", calls[0])
	assert.Equal(t, "POST /ticket/add_response", calls[1])
}

func TestClient_AddResponseUploadFailure(t *testing.T) {
	b, client, _ := newBackend(t)
	client.UploadConcurrency = 1
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "ok.txt", "fine"),
		writeFile(t, dir, "bad.txt", "denied"),
	}
	b.failKey = "tickets/TKT-2025-0001/1-bad.txt"

	_, err := client.AddResponse(context.Background(), "TKT-2025-0001", "See attached", files)
	require.ErrorIs(t, err, ErrUploadFailed)
	var upErr *UploadError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, []string{"tickets/TKT-2025-0001/0-ok.txt"}, upErr.Uploaded)
	assert.Contains(t, err.Error(), "0-ok.txt")
	assert.Nil(t, b.responded, "response must not be sent after a failed upload")
}

func TestClient_AddResponseValidation(t *testing.T) {
	b, client, _ := newBackend(t)

	_, err := client.AddResponse(context.Background(), "TKT-2025-0001", "   ", nil)
	assert.ErrorIs(t, err, validation.ErrInvalid)

	_, err = client.AddResponse(context.Background(), "TKT-2025-0001", "hi", []string{filepath.Join(t.TempDir(), "missing.txt")})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = client.AddResponse(context.Background(), "TKT-2025-0001", "hi", []string{t.TempDir()})
	assert.ErrorIs(t, err, validation.ErrInvalid)

	assert.Empty(t, b.callLog())
}

func TestClient_AddResponseWithoutFiles(t *testing.T) {
	b, client, _ := newBackend(t)
	_, err := client.AddResponse(context.Background(), "TKT-2025-0001", "Thanks", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"POST /ticket/add_response", "GET /ticket/TKT-2025-0001"}, b.callLog())
	assert.Empty(t, b.responded.AttachedFiles)
}

func TestClient_Download(t *testing.T) {
	b, client, _ := newBackend(t)
	var buf bytes.Buffer
	n, err := client.Download(context.Background(), "tickets/TKT-2025-0001/a.png", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, "file-bytes", buf.String())

	_, err = client.Download(context.Background(), "../etc/passwd", &buf)
	assert.ErrorIs(t, err, validation.ErrInvalid)

	calls := b.callLog()
	sort.Strings(calls)
	assert.Equal(t, []string{"GET /ticket/file_presign_download"}, calls)
}
