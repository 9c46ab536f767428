package watch

import (
	"strings"
	"time"
)

// Activity lights up on events and fades over ten seconds.
type Activity struct {
	dots int
	last time.Time
}

func (a *Activity) OnEvent(now time.Time) {
	a.dots = 5
	a.last = now
}

// Decay fades the dots based on time since the last event.
func (a *Activity) Decay(now time.Time) {
	if a.dots == 0 {
		return
	}
	left := 5 - int(now.Sub(a.last)/(2*time.Second))
	if left < 0 {
		left = 0
	}
	if left < a.dots {
		a.dots = left
	}
}

func (a Activity) Render(theme Theme) string {
	var b strings.Builder
	for i := range 5 {
		if i < a.dots {
			b.WriteString(theme.DotOn.Render("●"))
		} else {
			b.WriteString(theme.DotOff.Render("○"))
		}
	}
	return b.String()
}

func (a Activity) Last() time.Time { return a.last }
