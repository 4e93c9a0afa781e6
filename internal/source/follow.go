package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// followPoll bounds the wait for a change event, covering filesystems that
// do not deliver them.
const followPoll = 250 * time.Millisecond

// follower reads a file from its current end, waiting for appends.
type follower struct {
	path    string
	file    *os.File
	watcher *fsnotify.Watcher
	offset  int64
	done    chan struct{}
	once    sync.Once
}

func openFollow(path string) (*follower, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("seek %s: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		_ = file.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return &follower{path: path, file: file, watcher: watcher, offset: offset, done: make(chan struct{})}, nil
}

func (f *follower) Read(p []byte) (int, error) {
	for {
		n, err := f.file.Read(p)
		f.offset += int64(n)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if err := f.rewindIfTruncated(); err != nil {
			return 0, err
		}

		select {
		case <-f.done:
			return 0, os.ErrClosed
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return 0, os.ErrClosed
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				return 0, fmt.Errorf("%s was moved or removed", f.path)
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return 0, os.ErrClosed
			}
			return 0, fmt.Errorf("watch %s: %w", f.path, err)
		case <-time.After(followPoll):
		}
	}
}

func (f *follower) rewindIfTruncated() error {
	info, err := f.file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", f.path, err)
	}
	if info.Size() < f.offset {
		if _, err := f.file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("seek %s: %w", f.path, err)
		}
		f.offset = 0
	}
	return nil
}

func (f *follower) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		err = errors.Join(f.watcher.Close(), f.file.Close())
	})
	return err
}
