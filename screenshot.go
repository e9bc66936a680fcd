package grove

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// screenshotQueue holds labels waiting for the next drawn frame.
type screenshotQueue struct {
	mu     sync.Mutex
	labels []string
}

// Screenshot queues a labeled capture of the next frame drawn by Run. The
// PNG is written to RunConfig.ScreenshotDir with a timestamped file name.
// Safe to call from any goroutine.
func (w *World) Screenshot(label string) {
	w.shots.mu.Lock()
	w.shots.labels = append(w.shots.labels, label)
	w.shots.mu.Unlock()
}

// flushScreenshots writes the frame on screen for every queued label.
func (w *World) flushScreenshots(screen *ebiten.Image, dir string) {
	w.shots.mu.Lock()
	labels := w.shots.labels
	w.shots.labels = nil
	w.shots.mu.Unlock()
	if len(labels) == 0 {
		return
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.log.Error("screenshot failed", "dir", dir, "err", err)
		return
	}

	bounds := screen.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	pixels := make([]byte, 4*width*height)
	screen.ReadPixels(pixels)

	// Convert premultiplied RGBA to straight-alpha NRGBA.
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(pixels); i += 4 {
		r, g, b, a := pixels[i], pixels[i+1], pixels[i+2], pixels[i+3]
		if a > 0 && a < 255 {
			r = uint8(min(int(r)*255/int(a), 255))
			g = uint8(min(int(g)*255/int(a), 255))
			b = uint8(min(int(b)*255/int(a), 255))
		}
		img.Pix[i] = r
		img.Pix[i+1] = g
		img.Pix[i+2] = b
		img.Pix[i+3] = a
	}

	stamp := time.Now().Format("20060102_150405")
	for _, label := range labels {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", stamp, sanitizeLabel(label)))
		if err := writePNG(path, img); err != nil {
			w.log.Error("screenshot failed", "err", err)
			continue
		}
		w.log.Info("screenshot written", "path", path)
	}
}

// writePNG encodes an image to a PNG file at the given path.
func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// sanitizeLabel replaces characters that are unsafe in file names with
// underscores and falls back to "unlabeled" for empty strings.
func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "unlabeled"
	}
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
