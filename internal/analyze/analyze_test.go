package analyze

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/grabarr/internal/events"
	"github.com/vmunix/grabarr/internal/library"
	"github.com/vmunix/grabarr/internal/queue"
	"github.com/vmunix/grabarr/internal/store"
)

func TestSniffContainer(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   string
	}{
		{"matroska", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x00, 0x00}, "matroska"},
		{"mp4", []byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}, "mp4"},
		{"mp3 id3", []byte("ID3\x04\x00"), "mp3"},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90}, "mp3"},
		{"flac", []byte("fLaC\x00"), "flac"},
		{"ogg", []byte("OggS\x00"), "ogg"},
		{"riff", []byte("RIFF\x24\x00\x00\x00WAVE"), "riff"},
		{"unknown", []byte("garbage"), ""},
		{"short", []byte{0x1A}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sniffContainer(tt.header))
		})
	}
}

func TestContainerProber(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.mkv")
	require.NoError(t, os.WriteFile(path, []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01, 0x02, 0x03}, 0644))

	md, err := ContainerProber{}.Probe(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "matroska", md.MediaCodec)
	assert.Zero(t, md.DurationSecs)

	_, err = ContainerProber{}.Probe(context.Background(), filepath.Join(dir, "missing.mkv"))
	require.Error(t, err)
}

func TestAnalyzer_EnqueueStoresMetadata(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	libStore := library.NewStore(db)
	l := &library.Library{UserID: "u1", Name: "music", Type: library.TypeMusic, Root: "/media/music"}
	require.NoError(t, libStore.AddLibrary(l))

	path := filepath.Join(t.TempDir(), "track.flac")
	require.NoError(t, os.WriteFile(path, []byte("fLaC\x00\x00\x00\x22"), 0644))
	f := &library.File{LibraryID: l.ID, Path: path}
	require.NoError(t, libStore.AddFile(f))

	q := queue.New(queue.Config{Name: "analyze", Concurrency: 1, Attempts: 1}, nil)
	defer q.Close()
	bus := events.NewBus(nil)
	defer func() { _ = bus.Close() }()

	a := NewAnalyzer(libStore, q, nil, bus, nil)
	require.NoError(t, a.Enqueue(context.Background(), f.ID, path))

	require.Eventually(t, func() bool {
		got, err := libStore.GetFile(f.ID)
		return err == nil && got.AnalyzedAt != nil
	}, 2*time.Second, 10*time.Millisecond)

	got, err := libStore.GetFile(f.ID)
	require.NoError(t, err)
	assert.Equal(t, "flac", got.MediaCodec)
}
