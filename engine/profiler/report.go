package profiler

import (
	"fmt"
	"strings"
)

func (l *ledger) Report(rendererName string, width, height uint32) string {
	pixels := float64(width) * float64(height)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Renderer: %s\n", rendererName)
	fmt.Fprintf(&sb, "Resolution: %d x %d\n", width, height)

	for s := Section(0); s < SectionMaterialReadback; s++ {
		ms := l.Timer(s)
		rays := l.RayCount(s)
		hits := l.HitCount(s)
		if ms == 0 && rays == 0 {
			continue
		}

		fmt.Fprintf(&sb, "%s: %.3f ms", s, ms)
		switch {
		case s == SectionFrame:
			fmt.Fprintf(&sb, " (%.2f FPS)", 1000/ms)
		case rays != 0 && pixels > 0:
			fmt.Fprintf(&sb, " (%.3f rpp, %.0f%% hits)", rays/pixels, 100*hits/rays)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
