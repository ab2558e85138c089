package mp4

import (
	"os"
	"testing"
)

func newTempFile(t *testing.T) (*os.File, error) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "mp4mux-*.mp4")
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() { f.Close() })
	return f, nil
}
