// Package progress periodically logs the number of bytes moved through a
// reader, for visibility into large scene downloads.
package progress

import (
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/eocube/eocube/go/sklog"
)

var (
	// newTickerFunc allows overriding time.NewTicker for testing.
	newTickerFunc = time.NewTicker

	// callbackFunc is the function which reports the number of bytes
	// transferred.
	callbackFunc = loggingCallbackFunc
)

// loggingCallbackFunc logs the number of transferred bytes.
func loggingCallbackFunc(byteCount int64) {
	sklog.Infof("%s transferred", humanize.Bytes(uint64(byteCount)))
}

// callbackReader is an io.Reader which calls a function whenever bytes are
// read.
type callbackReader struct {
	io.Reader
	cb func(int)
}

// Read implements io.Reader.
func (r *callbackReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	r.cb(n)
	return n, err
}

// newCallbackReader returns an io.Reader which calls the given callback
// function whenever bytes are read.
func newCallbackReader(r io.Reader, cb func(int)) *callbackReader {
	return &callbackReader{
		Reader: r,
		cb:     cb,
	}
}

var _ io.Reader = &callbackReader{}

// Tracker sums the bytes moved through its readers and logs the total once
// per second while at least one transfer phase is open. Start and Stop
// nest, so concurrent downloads can share one tracker; the total resets
// when the first phase opens.
type Tracker struct {
	ch     chan int
	enable chan int
}

// track is called by the tracker's readers whenever bytes are read.
func (t *Tracker) track(n int) {
	t.ch <- n
}

// Reader returns an io.Reader which feeds the tracker as r is read.
func (t *Tracker) Reader(r io.Reader) io.Reader {
	return newCallbackReader(r, t.track)
}

// Start opens a transfer phase.
func (t *Tracker) Start() {
	t.enable <- 1
}

// Stop closes a transfer phase opened by Start.
func (t *Tracker) Stop() {
	t.enable <- -1
}

// NewTracker returns a Tracker. Its goroutine lives for the process.
func NewTracker() *Tracker {
	t := &Tracker{
		ch:     make(chan int),
		enable: make(chan int),
	}
	var callback func(int64) = nil
	count := int64(0)
	active := 0
	ticker := newTickerFunc(time.Second)

	go func() {
		for {
			select {
			case n := <-t.ch:
				count += int64(n)
			case <-ticker.C:
				if callback != nil {
					callback(count)
				}
			case delta := <-t.enable:
				if active == 0 && delta > 0 {
					count = 0
				}
				active += delta
				if active > 0 {
					callback = callbackFunc
				} else {
					callback = nil
				}
			}
		}
	}()
	return t
}
