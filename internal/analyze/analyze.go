// Package analyze attaches media metadata to organized library files.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/vmunix/grabarr/internal/events"
	"github.com/vmunix/grabarr/internal/library"
	"github.com/vmunix/grabarr/internal/queue"
)

// Metadata is what a probe learns about a media file.
type Metadata struct {
	MediaCodec   string
	DurationSecs int
}

// Prober inspects a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (*Metadata, error)
}

// ContainerProber identifies the container format from file magic.
// Duration stays unknown; a full demux is out of scope for the probe.
type ContainerProber struct{}

func (ContainerProber) Probe(ctx context.Context, path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open for probe: %w", err)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, 12)
	n, err := f.Read(header)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = header[:n]

	return &Metadata{MediaCodec: sniffContainer(header)}, nil
}

func sniffContainer(header []byte) string {
	switch {
	case len(header) >= 4 && header[0] == 0x1A && header[1] == 0x45 && header[2] == 0xDF && header[3] == 0xA3:
		return "matroska"
	case len(header) >= 8 && string(header[4:8]) == "ftyp":
		return "mp4"
	case len(header) >= 3 && string(header[:3]) == "ID3":
		return "mp3"
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		return "mp3"
	case len(header) >= 4 && string(header[:4]) == "fLaC":
		return "flac"
	case len(header) >= 4 && string(header[:4]) == "OggS":
		return "ogg"
	case len(header) >= 4 && string(header[:4]) == "RIFF":
		return "riff"
	default:
		return ""
	}
}

// Analyzer probes newly organized files in the background and stores
// the result on the library file record.
type Analyzer struct {
	lib    *library.Store
	q      *queue.Queue
	prober Prober
	bus    *events.Bus
	log    *slog.Logger
}

// NewAnalyzer creates an analyzer. A nil prober uses ContainerProber.
func NewAnalyzer(lib *library.Store, q *queue.Queue, prober Prober, bus *events.Bus, log *slog.Logger) *Analyzer {
	if prober == nil {
		prober = ContainerProber{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{
		lib:    lib,
		q:      q,
		prober: prober,
		bus:    bus,
		log:    log.With("component", "analyzer"),
	}
}

// Run consumes organize completions until the context ends.
func (a *Analyzer) Run(ctx context.Context) error {
	ch := a.bus.Subscribe(events.EventOrganizeCompleted, 16)
	defer a.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			oc, ok := ev.(*events.OrganizeCompleted)
			if !ok {
				continue
			}
			if err := a.Enqueue(ctx, oc.FileID, oc.DestPath); err != nil {
				a.log.Error("enqueue analysis failed", "file_id", oc.FileID, "error", err)
			}
		}
	}
}

// Enqueue schedules a probe of the file.
func (a *Analyzer) Enqueue(ctx context.Context, fileID int64, path string) error {
	_, err := a.q.Submit(ctx, fmt.Sprintf("analyze file %d", fileID), func(ctx context.Context) error {
		md, err := a.prober.Probe(ctx, path)
		if err != nil {
			return err
		}
		if err := a.lib.SetFileMetadata(fileID, md.MediaCodec, md.DurationSecs); err != nil {
			return err
		}
		a.log.Debug("file analyzed", "file_id", fileID, "codec", md.MediaCodec)
		return nil
	})
	return err
}
