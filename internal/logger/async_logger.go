// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// AsyncLogger decouples log writers (upcall handler goroutines) from the
// underlying writer (typically a lumberjack.Logger doing file rotation),
// so a slow disk never adds latency to the request path. It drops
// messages rather than blocking once its buffer is full.
type AsyncLogger struct {
	w     io.Writer
	ch    chan []byte
	done  chan struct{}
	once  sync.Once
	werr  error
	werrM sync.Mutex
}

// NewAsyncLogger starts a background goroutine draining writes into w.
// bufferSize bounds the number of pending messages.
func NewAsyncLogger(w io.Writer, bufferSize int) *AsyncLogger {
	l := &AsyncLogger{
		w:    w,
		ch:   make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *AsyncLogger) run() {
	defer close(l.done)
	for msg := range l.ch {
		if _, err := l.w.Write(msg); err != nil {
			l.werrM.Lock()
			l.werr = err
			l.werrM.Unlock()
		}
	}
}

// Write implements io.Writer. p is copied, since the caller may reuse its
// buffer after Write returns.
func (l *AsyncLogger) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case l.ch <- buf:
	default:
		fmt.Fprintln(os.Stderr, "asynclogger: log buffer is full, dropping message.")
	}
	return len(p), nil
}

// Close drains the remaining buffered messages, waits for them to be
// written, and returns any write error observed along the way.
func (l *AsyncLogger) Close() error {
	l.once.Do(func() { close(l.ch) })
	<-l.done

	l.werrM.Lock()
	defer l.werrM.Unlock()
	return l.werr
}
