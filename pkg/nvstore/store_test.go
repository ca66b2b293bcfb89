package nvstore

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type boolStore interface {
	ReadBoolState(key string, def bool) (bool, error)
	WriteBoolState(key string, val bool) error
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "nvstore")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestStores(t *testing.T) {
	newFile := func(t *testing.T) boolStore {
		f, err := OpenFile(filepath.Join(tempDir(t), "flags.yaml"))
		require.NoError(t, err)
		return f
	}
	stores := map[string]func(*testing.T) boolStore{
		"memory": func(*testing.T) boolStore { return NewMemory() },
		"file":   newFile,
	}
	for name, create := range stores {
		t.Run(name, func(t *testing.T) {
			s := create(t)
			v, err := s.ReadBoolState("InSafeMode", true)
			require.NoError(t, err)
			require.True(t, v, "default when missing")

			require.NoError(t, s.WriteBoolState("InSafeMode", false))
			require.NoError(t, s.WriteBoolState("LowPower", true))
			v, err = s.ReadBoolState("InSafeMode", true)
			require.NoError(t, err)
			require.False(t, v)
			v, err = s.ReadBoolState("LowPower", false)
			require.NoError(t, err)
			require.True(t, v)
		})
	}
}

func TestFilePersists(t *testing.T) {
	path := filepath.Join(tempDir(t), "flags.yaml")
	f, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.WriteBoolState("AutoSafe", true))

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "AutoSafe: true")

	f2, err := OpenFile(path)
	require.NoError(t, err)
	v, err := f2.ReadBoolState("AutoSafe", false)
	require.NoError(t, err)
	require.True(t, v)

	files, err := ioutil.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, files, 1, "no temporary files left behind")
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(tempDir(t), "flags.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("flags: [not, a, map"), 0644))
	_, err := OpenFile(path)
	require.Error(t, err)

	f := &File{Path: path, flags: map[string]bool{}}
	v, err := f.ReadBoolState("InSafeMode", true)
	require.Error(t, err)
	require.True(t, v)
}
