package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ledsign/internal/checksum"
	"ledsign/internal/logging"
	"ledsign/internal/protocol"
	"ledsign/internal/transpose"
	"ledsign/internal/wire"
)

const (
	DefaultBusyInterval = 20 * time.Millisecond
	DefaultMaxChunk     = 65536
	DefaultMinChunk     = 64
)

// Options tunes a transfer. Zero values select the defaults.
type Options struct {
	BusyInterval time.Duration
	MaxChunk     int
	MinChunk     int
	// Progress is called after every chunk with the bytes moved so far.
	Progress func(done, total int)
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.BusyInterval <= 0 {
		o.BusyInterval = DefaultBusyInterval
	}
	if o.MaxChunk <= 0 {
		o.MaxChunk = DefaultMaxChunk
	}
	if o.MinChunk <= 0 {
		o.MinChunk = DefaultMinChunk
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	return o
}

// ChunkSize is the download request size for a payload of total bytes: total
// clamped to [minChunk, maxChunk] and rounded down to whole groups.
func ChunkSize(total, minChunk, maxChunk int) int {
	size := min(max(total, minChunk), maxChunk)
	return max(size-size%transpose.GroupSize, transpose.GroupSize)
}

func session(ctx context.Context, logger *slog.Logger, direction string) (context.Context, *slog.Logger) {
	ctx = logging.WithSession(ctx, uuid.NewString())
	return ctx, logging.WithContext(ctx, logging.NewComponentLogger(logger, "transfer")).With(
		logging.String("direction", direction),
	)
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Upload sends prog to the sign behind c.
func Upload(ctx context.Context, c *protocol.Client, prog *wire.Compiled, opts Options) error {
	opts = opts.withDefaults()
	ctx, logger := session(ctx, opts.Logger, "upload")
	total := len(prog.Payload)
	started := time.Now()
	logger.Info("program upload started",
		logging.Int("bytes", total),
		logging.Hex("control", prog.Header.Control),
		logging.Hex("crc", prog.Header.CRC),
	)

	want, err := c.ProgramSetup(ctx, prog.Header.Control, prog.Header.CRC)
	if err != nil {
		return fmt.Errorf("program setup: %w", err)
	}
	busy := 0
	for want.Offset != protocol.DoneOffset {
		if want.Size == 0 {
			busy++
			if err := wait(ctx, opts.BusyInterval); err != nil {
				return err
			}
		} else {
			end := uint64(want.Offset) + uint64(want.Size)
			if end > uint64(total) {
				return fmt.Errorf("%w: sign requested bytes %d-%d of %d", protocol.ErrProtocol, want.Offset, end, total)
			}
			if err := c.BulkWrite(ctx, prog.Payload[want.Offset:end]); err != nil {
				return err
			}
			logger.Debug("chunk sent", logging.Int64("offset", int64(want.Offset)), logging.Int64("size", int64(want.Size)))
			if opts.Progress != nil {
				opts.Progress(int(end), total)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if want, err = c.UploadStatus(ctx); err != nil {
			return fmt.Errorf("upload status: %w", err)
		}
	}
	if opts.Progress != nil {
		opts.Progress(total, total)
	}
	logger.Info("program upload finished",
		logging.Int("bytes", total),
		logging.Int("busy_polls", busy),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// Download streams the program described by header from the sign behind c
// into sink, then checks the payload against header.CRC. On a mismatch sink
// has already seen the corrupt bytes and the error wraps
// wire.ErrIntegrityMismatch.
func Download(ctx context.Context, c *protocol.Client, header wire.Header, sink io.Writer, opts Options) error {
	opts = opts.withDefaults()
	ctx, logger := session(ctx, opts.Logger, "download")
	total := header.PayloadSize()
	chunk := uint32(ChunkSize(total, opts.MinChunk, opts.MaxChunk))
	logger.Info("program download started", logging.Int("bytes", total), logging.Int("chunk", int(chunk)))

	crc := checksum.New()
	offset := 0
	busy := 0
	for offset < total {
		n, err := c.RequestChunk(ctx, uint32(offset), chunk)
		if err != nil {
			return fmt.Errorf("request chunk: %w", err)
		}
		if n == 0 {
			busy++
			if err := wait(ctx, opts.BusyInterval); err != nil {
				return err
			}
			continue
		}
		if n > chunk || offset+int(n) > total {
			return fmt.Errorf("%w: sign offered %d bytes at offset %d of %d", protocol.ErrProtocol, n, offset, total)
		}
		data, err := c.BulkRead(ctx, int(n))
		if err != nil {
			return err
		}
		crc.Write(data)
		if _, err := sink.Write(data); err != nil {
			return fmt.Errorf("consume chunk: %w", err)
		}
		offset += len(data)
		if opts.Progress != nil {
			opts.Progress(offset, total)
		}
	}
	if sum := crc.Sum32(); sum != header.CRC {
		logging.WarnWithContext(logger, "program checksum mismatch", "download_checksum_mismatch",
			logging.Hex("expected", header.CRC),
			logging.Hex("received", sum),
			logging.String(logging.FieldErrorHint, "re-upload the program or retry the download"),
			logging.String(logging.FieldImpact, "downloaded keypoints discarded"),
		)
		return fmt.Errorf("%w: received %#08x, sign reports %#08x", wire.ErrIntegrityMismatch, sum, header.CRC)
	}
	logger.Info("program download finished", logging.Int("bytes", total), logging.Int("busy_polls", busy))
	return nil
}
