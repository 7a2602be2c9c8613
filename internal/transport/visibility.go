package transport

// Visibility reports host foreground transitions, the equivalent of page
// visibility in a browser. Events delivers true when the host becomes
// visible and false when it is hidden.
type Visibility interface {
	Events() <-chan bool
}

// ChanVisibility is a channel-backed Visibility, convenient for embedders
// that surface their own lifecycle signals.
type ChanVisibility chan bool

func (v ChanVisibility) Events() <-chan bool { return v }
