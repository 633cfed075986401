package watch

import (
	"strings"
	"time"
)

// Pulse lights up when an event arrives and fades over ten seconds.
type Pulse struct {
	level int
	last  time.Time
}

const pulseWidth = 5

func (p *Pulse) Hit(now time.Time) {
	p.level = pulseWidth
	p.last = now
}

// Decay dims one dot for every two seconds of silence.
func (p *Pulse) Decay(now time.Time) {
	if p.level == 0 {
		return
	}
	lit := pulseWidth - int(now.Sub(p.last)/(2*time.Second))
	if lit < 0 {
		lit = 0
	}
	if lit < p.level {
		p.level = lit
	}
}

func (p Pulse) Last() time.Time { return p.last }

func (p Pulse) Render(theme Theme) string {
	var b strings.Builder
	for i := range pulseWidth {
		if i < p.level {
			b.WriteString(theme.PulseOn.Render("●"))
		} else {
			b.WriteString(theme.PulseOff.Render("○"))
		}
	}
	return b.String()
}

// meanBar draws mean in [0,1] as a fixed-width bar.
func meanBar(mean float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(mean*float64(width) + 0.5)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
