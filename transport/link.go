package transport

// Link is the radio or socket connection to the vehicle. Implementations
// must be safe for one concurrent reader and one concurrent writer.
type Link interface {
	// Connect opens the link. It may block.
	Connect() error
	IsConnected() bool

	// Read copies one inbound frame into p. n <= 0 means nothing was
	// available yet; the caller backs off and retries.
	Read(p []byte) (n int, err error)

	// Write sends one frame. requestAck asks the remote end to acknowledge
	// it so the link can estimate its own quality.
	Write(p []byte, requestAck bool) error

	// RxQuality is the local receive quality in percent (0-100).
	RxQuality() int
	// RxLevel is the local receive level in dBm.
	RxLevel() int

	SetRetriesCount(n int)
	RetriesCount() int
}
