package source

import (
	"io"
	"sync"
	"time"

	"github.com/five82/tether/internal/pipeline"
)

// DefaultMaxLine splits records that grow past this many bytes.
const DefaultMaxLine = 64 * 1024

// lineConn frames an io.Reader into records on a background goroutine and
// implements pipeline.Conn.
type lineConn struct {
	identity string
	closer   io.Closer
	maxLine  int

	records chan pipeline.RawRecord
	errc    chan error
	done    chan struct{}
	once    sync.Once
	err     error
}

func newLineConn(identity string, r io.Reader, closer io.Closer, maxLine int) *lineConn {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	c := &lineConn{
		identity: identity,
		closer:   closer,
		maxLine:  maxLine,
		records:  make(chan pipeline.RawRecord, 256),
		errc:     make(chan error, 1),
		done:     make(chan struct{}),
	}
	go c.run(r)
	return c
}

func (c *lineConn) Identity() string { return c.identity }

// ReadRecord waits up to timeout for the next record. Records read before a
// transport failure are delivered before the error.
func (c *lineConn) ReadRecord(timeout time.Duration) (pipeline.RawRecord, bool, error) {
	select {
	case rec := <-c.records:
		return rec, true, nil
	default:
	}
	if c.err != nil {
		return pipeline.RawRecord{}, false, c.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case rec := <-c.records:
		return rec, true, nil
	case err := <-c.errc:
		c.err = err
		select {
		case rec := <-c.records:
			return rec, true, nil
		default:
		}
		return pipeline.RawRecord{}, false, err
	case <-timer.C:
		return pipeline.RawRecord{}, false, nil
	}
}

func (c *lineConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		if c.closer != nil {
			err = c.closer.Close()
		}
	})
	return err
}

func (c *lineConn) run(r io.Reader) {
	buf := make([]byte, 4096)
	var line []byte
	var started time.Time
	for {
		n, err := r.Read(buf)
		now := time.Now()
		for _, b := range buf[:n] {
			if len(line) == 0 {
				started = now
			}
			line = append(line, b)
			if b == '\n' || len(line) >= c.maxLine {
				if !c.emit(line, started) {
					return
				}
				line = nil
			}
		}
		if err != nil {
			if len(line) > 0 && !c.emit(line, started) {
				return
			}
			select {
			case c.errc <- err:
			case <-c.done:
			}
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
	}
}

func (c *lineConn) emit(line []byte, at time.Time) bool {
	rec := pipeline.RawRecord{Payload: line, Arrival: at}
	select {
	case c.records <- rec:
		return true
	case <-c.done:
		return false
	}
}
