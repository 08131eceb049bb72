package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/harun/doctalk/pkg/frames"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService stands in for the document service: uploads, scores and an
// echoing chat channel.
type fakeService struct {
	*httptest.Server

	uploadStatus atomic.Int32
	uploadDetail atomic.Value // string
	dials        atomic.Int32

	mu       sync.Mutex
	uploads  []string // session ids
	received []string
	// reply overrides the echo for the next inbound message
	reply *frames.Inbound
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()

	s := &fakeService{}
	s.uploadDetail.Store("")
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload/{id}", func(w http.ResponseWriter, r *http.Request) {
		if code := s.uploadStatus.Load(); code != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(int(code))
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": s.uploadDetail.Load().(string)})
			return
		}
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		n, _ := io.Copy(io.Discard, file)

		s.mu.Lock()
		s.uploads = append(s.uploads, r.PathValue("id"))
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"filename": header.Filename, "file_size": n})
	})
	mux.HandleFunc("GET /api/score/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]float64{"score": 7.5})
	})
	mux.HandleFunc("/api/chat/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var out frames.Outbound
			if err := json.Unmarshal(data, &out); err != nil {
				return
			}

			s.mu.Lock()
			s.received = append(s.received, out.Content)
			reply := frames.Inbound{Type: frames.TypeAssistant, Content: "echo: " + out.Content}
			if s.reply != nil {
				reply = *s.reply
				s.reply = nil
			}
			s.mu.Unlock()

			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *fakeService) failUploads(code int, detail string) {
	s.uploadDetail.Store(detail)
	s.uploadStatus.Store(int32(code))
}

func (s *fakeService) replyNext(in frames.Inbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = &in
}

func (s *fakeService) Uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploads...)
}

func (s *fakeService) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeDocument(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeConfig writes a config file pointing at srv and returns its path. The
// data directory defaults to the file's directory.
func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doctalk.json")
	cfg := map[string]any{
		"server": map[string]any{"base_url": baseURL},
		"retry":  map[string]any{"base_delay_ms": 50, "min_interval_ms": 1},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// execute runs the root command with args. Flag values from earlier runs
// are reset first since the command tree is shared.
func execute(t *testing.T, in string, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)
	out := &syncBuffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetIn(strings.NewReader(in))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
