package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// spinnerInterval is the frame period.
const spinnerInterval = 100 * time.Millisecond

// Spinner displays a progress animation while a refresh is in flight.
// A disabled spinner only prints the final Success or Fail line.
type Spinner struct {
	w       io.Writer
	message string
	frames  []string
	enabled bool

	mu      sync.Mutex
	started bool
	once    sync.Once
	done    chan struct{}
	exited  chan struct{}
}

// NewSpinner creates a new spinner. Pass enabled=false when w is not a
// terminal or the output is machine-readable.
func NewSpinner(w io.Writer, message string, enabled bool) *Spinner {
	return &Spinner{
		w:       w,
		message: message,
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		enabled: enabled,
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.started {
		return
	}
	s.started = true

	go func() {
		defer close(s.exited)
		ticker := time.NewTicker(spinnerInterval)
		defer ticker.Stop()

		for i := 0; ; i++ {
			s.mu.Lock()
			fmt.Fprintf(s.w, "\r%s %s", s.frames[i%len(s.frames)], s.message)
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// halt stops the animation and waits for the last frame to be written.
func (s *Spinner) halt() {
	s.once.Do(func() {
		close(s.done)
	})
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.exited
	}
}

// Stop stops the spinner and clears the line.
func (s *Spinner) Stop() {
	s.halt()
	if s.enabled {
		fmt.Fprint(s.w, "\r\033[K")
	}
}

// Success stops the spinner with a success message.
func (s *Spinner) Success(message string) {
	s.halt()
	s.finish("✓", message)
}

// Fail stops the spinner with a failure message.
func (s *Spinner) Fail(message string) {
	s.halt()
	s.finish("✗", message)
}

func (s *Spinner) finish(mark, message string) {
	if s.enabled {
		fmt.Fprintf(s.w, "\r\033[K%s %s\n", mark, message)
		return
	}
	fmt.Fprintf(s.w, "%s %s\n", mark, message)
}
