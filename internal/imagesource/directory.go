package imagesource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
)

var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// DirectoryDevice is a headless capture device. A scanner station writes frames as image
// files into a spool directory; the newest complete file is the current frame.
type DirectoryDevice struct {
	dir    string
	facing Facing

	mu   sync.Mutex
	open bool
}

// NewDirectoryDevice creates a device over dir reporting the given facing
func NewDirectoryDevice(dir string, facing Facing) *DirectoryDevice {
	if facing == "" {
		facing = FacingBack
	}
	return &DirectoryDevice{dir: dir, facing: facing}
}

func (d *DirectoryDevice) statDir() error {
	info, err := os.Stat(d.dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("spool directory %s: %w", d.dir, ErrDeviceNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("spool directory %s: %w", d.dir, ErrPermissionDenied)
	case err != nil:
		return fmt.Errorf("stat spool directory: %w", err)
	case !info.IsDir():
		return fmt.Errorf("spool path %s is not a directory: %w", d.dir, ErrDeviceNotFound)
	}
	return nil
}

// EnumerateDevices returns the spool directory, or nothing when it does not exist
func (d *DirectoryDevice) EnumerateDevices(ctx context.Context) ([]DeviceInfo, error) {
	if err := d.statDir(); err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []DeviceInfo{{ID: d.dir, Label: "spool " + filepath.Base(d.dir), Facing: d.facing}}, nil
}

// Permission reports whether the spool directory is readable
func (d *DirectoryDevice) Permission(ctx context.Context) (Permission, error) {
	f, err := os.Open(d.dir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return PermissionDenied, nil
		}
		// a missing directory is reported by EnumerateDevices
		return PermissionGranted, nil
	}
	f.Close()
	return PermissionGranted, nil
}

// OpenStream starts watching the spool directory. Only one stream may be open at a time.
func (d *DirectoryDevice) OpenStream(ctx context.Context, c Constraints) (DriverStream, error) {
	if c.Facing != "" && c.Facing != d.facing {
		return nil, fmt.Errorf("device faces %s, %s requested: %w", d.facing, c.Facing, ErrOverconstrained)
	}
	if err := d.statDir(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil, ErrDeviceBusy
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(d.dir); err != nil {
		watcher.Close()
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("watching %s: %w", d.dir, ErrPermissionDenied)
		}
		return nil, fmt.Errorf("watching %s: %w", d.dir, err)
	}

	s := &dirStream{
		device:      d,
		watcher:     watcher,
		constraints: c,
		ready:       make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	if path := newestFrame(d.dir); path != "" {
		s.load(path)
	}
	d.open = true

	go s.watch()
	return s, nil
}

func (d *DirectoryDevice) release() {
	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
}

func isFrameFile(path string) bool {
	return frameExtensions[strings.ToLower(filepath.Ext(path))]
}

// newestFrame returns the most recently modified frame file in dir
func newestFrame(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var newest string
	var newestInfo fs.FileInfo
	for _, e := range entries {
		if e.IsDir() || !isFrameFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newestInfo == nil || info.ModTime().After(newestInfo.ModTime()) {
			newest, newestInfo = filepath.Join(dir, e.Name()), info
		}
	}
	return newest
}

type dirStream struct {
	device      *DirectoryDevice
	watcher     *fsnotify.Watcher
	constraints Constraints

	ready     chan struct{}
	readyOnce sync.Once
	stopped   chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	frame image.Image
}

func (s *dirStream) Ready() <-chan struct{} {
	return s.ready
}

func (s *dirStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, ErrFrameNotReady
	}
	return s.frame, nil
}

func (s *dirStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.watcher.Close()
		<-s.stopped
		s.device.release()
	})
	return err
}

func (s *dirStream) watch() {
	defer close(s.stopped)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if isFrameFile(event.Name) {
				s.load(event.Name)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Spool watcher error", "dir", s.device.dir, "error", err)
		}
	}
}

// load decodes path as the current frame. Partially written files fail to decode and are
// picked up again on their next write event.
func (s *dirStream) load(path string) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		slog.Debug("Skipping unreadable frame", "path", path, "error", err)
		return
	}

	b := img.Bounds()
	if maxW, maxH := s.constraints.MaxWidth, s.constraints.MaxHeight; maxW > 0 && maxH > 0 && (b.Dx() > maxW || b.Dy() > maxH) {
		img = imaging.Fit(img, maxW, maxH, imaging.Lanczos)
	}

	s.mu.Lock()
	s.frame = img
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
}
