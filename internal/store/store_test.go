package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Cash  float64           `json:"cash"`
	Notes map[string]string `json:"notes"`
}

func TestNew_FirstRunWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.json")

	s, err := New(path, func() sample {
		return sample{Cash: 100_000, Notes: map[string]string{}}
	})
	require.NoError(t, err)
	require.Equal(t, 100_000.0, s.Get().Cash)
	require.FileExists(t, path)
}

func TestSave_PersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.json")

	s, err := New(path, func() sample { return sample{Cash: 1, Notes: map[string]string{}} })
	require.NoError(t, err)

	require.NoError(t, s.Save(func(d *sample) {
		d.Cash = 42
		d.Notes["a"] = "b"
	}))

	s2, err := New(path, func() sample { return sample{} })
	require.NoError(t, err)
	require.Equal(t, 42.0, s2.Get().Cash)
	require.Equal(t, "b", s2.Get().Notes["a"])
}

func TestSave_ConcurrentWritesNeverTear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.json")

	s, err := New(path, func() sample { return sample{Notes: map[string]string{}} })
	require.NoError(t, err)

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(n int) {
			_ = s.Save(func(d *sample) { d.Cash += 1 })
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}

	s2, err := New(path, func() sample { return sample{} })
	require.NoError(t, err)
	require.Equal(t, 20.0, s2.Get().Cash)
}
