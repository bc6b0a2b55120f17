package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// FrameCallback receives each extracted JPEG frame.
type FrameCallback func(frameData []byte) error

// extractFrames runs FFmpeg against the source at a fixed frame rate and
// width, invoking callback per JPEG frame. It blocks until the context is
// cancelled (which kills FFmpeg) or the source ends.
func extractFrames(ctx context.Context, sourceURL string, fps, width int, callback FrameCallback) error {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
	}

	switch {
	case strings.HasPrefix(sourceURL, "rtsp://"), strings.HasPrefix(sourceURL, "rtsps://"):
		args = append(args,
			"-rtsp_transport", "tcp",
			"-stimeout", "5000000",
			"-timeout", "5000000",
		)
	case strings.HasPrefix(sourceURL, "http://"), strings.HasPrefix(sourceURL, "https://"):
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000",
		)
	}

	args = append(args,
		"-i", sourceURL,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", fps, width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "output", scanner.Text())
		}
	}()

	if err := scanJPEGFrames(ctx, stdout, callback); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read frames: %w", err)
	}
	return cmd.Wait()
}

const maxFrameBytes = 10 * 1024 * 1024

// scanJPEGFrames splits the concatenated MJPEG byte stream on SOI/EOI
// markers. EOF before the first frame is tolerated for up to 5 seconds while
// FFmpeg connects.
func scanJPEGFrames(ctx context.Context, r io.Reader, callback FrameCallback) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	framesRead := 0
	startupRetries := 0
	const maxStartupRetries = 50 // 5s at 100ms

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		frame, err := nextJPEG(reader)
		if err != nil {
			if err == io.EOF {
				if framesRead > 0 {
					return nil
				}
				if startupRetries < maxStartupRetries {
					startupRetries++
					time.Sleep(100 * time.Millisecond)
					continue
				}
				return fmt.Errorf("no frames received from ffmpeg (waited %.1fs)",
					float64(startupRetries)*0.1)
			}
			return err
		}

		if len(frame) > 0 {
			framesRead++
			if err := callback(frame); err != nil {
				slog.Warn("frame callback", "error", err)
			}
		}
	}
}

// nextJPEG scans to the next FF D8 marker and returns everything through the
// matching FF D9.
func nextJPEG(r *bufio.Reader) ([]byte, error) {
	// Seek start-of-image.
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == 0xD8 {
			break
		}
	}

	data := []byte{0xFF, 0xD8}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)
		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}
		if len(data) > maxFrameBytes {
			return nil, fmt.Errorf("jpeg frame exceeds %d bytes", maxFrameBytes)
		}
	}
}
