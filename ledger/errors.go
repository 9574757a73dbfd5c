package ledger

import "fmt"

var (
	// ErrRecorderClosed is returned when recording after Close.
	ErrRecorderClosed = fmt.Errorf("ledger recorder closed")
	// ErrQueueFull is returned when the recorder queue cannot take an entry.
	ErrQueueFull = fmt.Errorf("ledger queue full")
)
