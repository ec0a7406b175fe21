package monitor

import (
	"fmt"
	"strings"
)

const progressBarCells = 20

// DefaultTotalCapacity is the full bonus-pool size the progress bar is
// rendered against when the config doesn't override it.
const DefaultTotalCapacity = 150000

// StartMessage is the event-started broadcast text, shared by the channel
// post and the bot fan-out.
func StartMessage(siteURL string) string {
	return "❗️ FREELECH STARTED ❗️\n❗️ НАЧАЛСЯ ФРИЛИЧ ❗️\n🚀 " + siteURL + " 🚀"
}

// ProgressMessage renders the pool progress plus the contributor ranking in
// page order, one "name: amount" line each.
func ProgressMessage(snap Snapshot, total int) string {
	if total <= 0 {
		total = DefaultTotalCapacity
	}
	contributed := total - snap.Counter

	var b strings.Builder
	fmt.Fprintf(&b, "[%d/%d]\n\n%s", contributed, total, progressBar(float64(contributed)/float64(total)))
	if len(snap.Contributors) > 0 {
		b.WriteString("\n")
		for _, c := range snap.Contributors {
			fmt.Fprintf(&b, "\n%s: %d", c.Name, c.Amount)
		}
	}
	return b.String()
}

// progressBar renders a fixed-width ■/□ bar with a percentage suffix.
func progressBar(progress float64) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * progressBarCells)
	return strings.Repeat("■", filled) +
		strings.Repeat("□", progressBarCells-filled) +
		fmt.Sprintf(" [%d%%]", int(progress*100))
}
