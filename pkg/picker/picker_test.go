package picker

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

func TestCommand(t *testing.T) {
	tests := []struct {
		goos     string
		wantName string
		wantErr  bool
	}{
		{"darwin", "osascript", false},
		{"linux", "zenity", false},
		{"windows", "powershell", false},
		{"plan9", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			name, args, err := Command(tt.goos)
			if tt.wantErr {
				require.True(t, shiperrors.IsWorkflowError(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantName, name)
			require.NotEmpty(t, args)
		})
	}
}

func stub(out string, err error) RunFunc {
	return func(context.Context, string, ...string) ([]byte, error) {
		return []byte(out), err
	}
}

func TestPickFolder(t *testing.T) {
	p := New(WithGOOS("darwin"), WithRunner(stub("/Users/me/src/api/\n", nil)))
	got, err := p.PickFolder(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/Users/me/src/api", got)

	p = New(WithGOOS("linux"), WithRunner(stub("/home/me/src/api\n", nil)))
	got, err = p.PickFolder(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/home/me/src/api", got)
}

func TestPickFolder_Cancelled(t *testing.T) {
	p := New(WithGOOS("windows"), WithRunner(stub("\r\n", nil)))
	_, err := p.PickFolder(context.Background())
	require.ErrorIs(t, err, ErrCancelled)

	if runtime.GOOS == "windows" {
		t.Skip("needs the false utility")
	}
	exitErr := exec.Command("false").Run()
	p = New(WithGOOS("linux"), WithRunner(stub("", exitErr)))
	_, err = p.PickFolder(context.Background())
	require.ErrorIs(t, err, ErrCancelled)
}

func TestPickFolder_Errors(t *testing.T) {
	p := New(WithGOOS("linux"), WithRunner(stub("", errors.New("executable file not found"))))
	_, err := p.PickFolder(context.Background())
	require.ErrorContains(t, err, "failed to run zenity")

	p = New(WithGOOS("linux"), WithTimeout(10*time.Millisecond), WithRunner(func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	_, err = p.PickFolder(context.Background())
	require.True(t, shiperrors.IsWorkflowError(err))
}
