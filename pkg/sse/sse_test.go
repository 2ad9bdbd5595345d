package sse

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWriter_Frames(t *testing.T) {
	rec := httptest.NewRecorder()

	w, err := NewWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Status("Generating plan..."))
	require.NoError(t, w.Delta("Hello"))
	require.NoError(t, w.Tool("read_file", "start", "main.go"))
	require.NoError(t, w.Result(map[string]int{"turns": 2}))
	require.NoError(t, w.Error("boom"))
	require.NoError(t, w.Done())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)

	want := strings.Join([]string{
		"event: status\ndata: {\"message\":\"Generating plan...\"}\n\n",
		"event: delta\ndata: {\"text\":\"Hello\"}\n\n",
		"event: tool\ndata: {\"name\":\"read_file\",\"phase\":\"start\",\"detail\":\"main.go\"}\n\n",
		"event: result\ndata: {\"turns\":2}\n\n",
		"event: error\ndata: {\"error\":\"boom\"}\n\n",
		"event: done\ndata: {}\n\n",
	}, "")
	assert.Equal(t, want, rec.Body.String())
}

type failingWriter struct {
	header http.Header
	writes int
}

func (f *failingWriter) Header() http.Header { return f.header }
func (f *failingWriter) WriteHeader(int)     {}
func (f *failingWriter) Flush()              {}
func (f *failingWriter) Write([]byte) (int, error) {
	f.writes++
	return 0, http.ErrHandlerTimeout
}

func TestWriter_StopsAfterWriteError(t *testing.T) {
	fw := &failingWriter{header: http.Header{}}
	w, err := NewWriter(fw)
	require.NoError(t, err)

	require.Error(t, w.Delta("a"))
	require.Error(t, w.Done())
	assert.Equal(t, 1, fw.writes)
}

type plainWriter struct{ http.ResponseWriter }

func TestNewWriter_RequiresFlusher(t *testing.T) {
	_, err := NewWriter(plainWriter{httptest.NewRecorder()})
	require.Error(t, err)
}

func TestAccumulator_MergesDeltas(t *testing.T) {
	var acc Accumulator

	acc.Status("Starting agent")
	acc.Delta("I will ")
	acc.Delta("read the file.")
	acc.Tool("read_file", "start", "main.go")
	acc.Tool("read_file", "finish", "")
	acc.Delta("")
	acc.Delta("Done.")
	acc.Tool("run_command", "error", "exit status 1")

	want := []Block{
		{Kind: BlockStatus, Text: "Starting agent"},
		{Kind: BlockText, Text: "I will read the file."},
		{Kind: BlockTool, Text: "read_file main.go"},
		{Kind: BlockText, Text: "Done."},
		{Kind: BlockTool, Text: "run_command failed: exit status 1"},
	}
	if diff := cmp.Diff(want, acc.Blocks()); diff != "" {
		t.Errorf("Blocks() mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "I will read the file.\n\nDone.", acc.Text())
	assert.Contains(t, acc.String(), "> 🔧 read_file main.go")
	assert.Contains(t, acc.String(), "_Starting agent_")
}

func TestWriter_RecordsTranscript(t *testing.T) {
	w, err := NewWriter(httptest.NewRecorder())
	require.NoError(t, err)

	require.NoError(t, w.Delta("a"))
	require.NoError(t, w.Delta("b"))
	require.NoError(t, w.Error("bad"))

	blocks := w.Transcript().Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, "ab", blocks[0].Text)
	assert.Equal(t, "error: bad", blocks[1].Text)
}
