package notifications

import "sync"

const (
	SignedOutText  = "?"
	SignedOutColor = "#222"
)

// Badge tracks the short unread indicator
type Badge struct {
	mu        sync.RWMutex
	text      string
	value     int
	color     string
	signedOut bool
}

func NewBadge(color string) *Badge {
	return &Badge{color: color}
}

// Update sets the badge to total. changed reports whether the text moved and
// notify whether that move is worth a notification, which needs the value to
// have gone up.
func (b *Badge) Update(total int) (changed, notify bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	text := ""
	if total > 0 {
		text = ShortenCount(total)
	}

	b.signedOut = false
	if text == b.text {
		return false, false
	}

	previous := b.value
	b.text = text
	b.value = total

	return true, total > 0 && total > previous
}

// SetSignedOut shows the unknown state. The next signed-in update starts from zero.
func (b *Badge) SetSignedOut() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = SignedOutText
	b.value = 0
	b.signedOut = true
}

// SetColor changes the signed-in background colour
func (b *Badge) SetColor(color string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.color = color
}

func (b *Badge) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// Color is the background colour currently shown
func (b *Badge) Color() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.signedOut {
		return SignedOutColor
	}
	return b.color
}
