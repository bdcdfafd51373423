package history

import (
	"fmt"
	"io"
	"math"
)

// WriteComparison prints how cur moved against prev. Scores are lower-is-better,
// so a negative delta is an improvement.
func WriteComparison(w io.Writer, prev *Run, cur Run) error {
	if prev == nil {
		_, err := fmt.Fprintf(w, "No previous run recorded for %s\n", cur.SequenceDir)
		return err
	}
	_, err := fmt.Fprintf(w,
		"Compared with run %s (%s):\n"+
			"\tHistogram score %d -> %d (%+d)\n"+
			"\tAlternate histogram score %d -> %d (%+d)\n"+
			"\tMean primary error below 50%% %s -> %s\n"+
			"\tFailed sequences %d -> %d\n",
		prev.ID, prev.StartedAt.Format("2006-01-02 15:04:05"),
		prev.Score, cur.Score, cur.Score-prev.Score,
		prev.AltScore, cur.AltScore, cur.AltScore-prev.AltScore,
		pct(prev.MeanBelow50), pct(cur.MeanBelow50),
		prev.Failed, cur.Failed,
	)
	return err
}

func pct(v float64) string {
	if math.IsNaN(v) {
		return "nan%"
	}
	return fmt.Sprintf("%.2f%%", v)
}
