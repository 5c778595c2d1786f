package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadDefaultsForUnknownUser(t *testing.T) {
	s := openStore(t)

	p, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, DefaultPreferences("alice"), p)
	assert.Equal(t, 1.0, p.Volume)
	assert.False(t, p.Dnd)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openStore(t)

	want := Preferences{
		UserID:      "alice",
		RingtoneURL: "https://cdn.example.com/ring.mp3",
		LoopStart:   1500 * time.Millisecond,
		LoopEnd:     6 * time.Second,
		Volume:      0.7,
		Dnd:         true,
	}
	require.NoError(t, s.Save(want))

	got, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveUpserts(t *testing.T) {
	s := openStore(t)

	p := DefaultPreferences("alice")
	p.Volume = 0.5
	require.NoError(t, s.Save(p))

	p.Volume = 0.9
	p.Dnd = true
	require.NoError(t, s.Save(p))

	got, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, 0.9, got.Volume)
	assert.True(t, got.Dnd)
}

func TestUsersIsolated(t *testing.T) {
	s := openStore(t)

	a := DefaultPreferences("alice")
	a.Dnd = true
	require.NoError(t, s.Save(a))

	b, err := s.Load("bob")
	require.NoError(t, err)
	assert.False(t, b.Dnd)
}

func TestDelete(t *testing.T) {
	s := openStore(t)

	p := DefaultPreferences("alice")
	p.Volume = 0.2
	require.NoError(t, s.Save(p))
	require.NoError(t, s.Delete("alice"))

	got, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Volume, "deleted user falls back to defaults")
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	p := DefaultPreferences("alice")
	p.RingtoneURL = "file:///tone.ogg"
	require.NoError(t, s.Save(p))
	require.NoError(t, s.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, "file:///tone.ogg", got.RingtoneURL)
}
