package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "gpsselectd.pid")
	p := New(path)

	running, _, err := p.CheckRunning()
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, p.Create())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(data))

	// our own PID does not count as another instance
	running, pid, err := p.CheckRunning()
	require.NoError(t, err)
	assert.False(t, running)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, p.Remove())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, p.Remove())
}

func TestPIDFile_LiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpsselectd.pid")
	// the parent process is alive for as long as the test runs
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0o644))

	p := New(path)
	running, pid, err := p.CheckRunning()
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getppid(), pid)

	assert.ErrorIs(t, p.Create(), ErrAlreadyRunning)
	assert.Error(t, p.Remove())

	require.NoError(t, p.ForceRemove())
	require.NoError(t, p.Create())
}

func TestPIDFile_UnusableContentIsStale(t *testing.T) {
	for name, content := range map[string][]byte{
		"empty":    nil,
		"garbage":  []byte("not-a-pid"),
		"negative": []byte("-4\n"),
		"torn":     []byte("12ab"),
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "gpsselectd.pid")
			require.NoError(t, os.WriteFile(path, content, 0o644))
			p := New(path)

			running, pid, err := p.CheckRunning()
			require.NoError(t, err)
			assert.False(t, running)
			assert.Zero(t, pid)

			require.NoError(t, p.Create())
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(data))
		})
	}
}

func TestPIDFile_RemoveUnusableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpsselectd.pid")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, New(path).Remove())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_UnreadableFileIsAnError(t *testing.T) {
	// a directory in place of the file cannot be read
	path := t.TempDir()

	_, _, err := New(path).CheckRunning()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidPID)
}
