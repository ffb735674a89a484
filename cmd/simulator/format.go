package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/signalsfoundry/study-session-simulator/model"
)

// printRecord writes rec as the results panel, or as JSON.
func printRecord(w io.Writer, rec model.SessionRecord, jsonOut bool) error {
	if jsonOut {
		return json.NewEncoder(w).Encode(rec)
	}
	_, err := io.WriteString(w, formatRecord(rec))
	return err
}

func formatRecord(rec model.SessionRecord) string {
	header := "Session " + rec.SessionID
	if !rec.EndedAt.IsZero() {
		header += " (ended " + rec.EndedAt.UTC().Format(time.RFC3339) + ")"
	}
	return fmt.Sprintf(`%s
  Input Scenario:         %.2f
  Agents Processed:       %d
  Active Study Sites:     %d
  Output Avg Score:       %.2f
  Output Studied:         %d
  Output Left Unstudied:  %d
  Avg Spend (Leavers):    %s
`,
		header,
		rec.ScenarioValue,
		rec.AgentsProcessed,
		rec.ActiveSites,
		rec.AvgScore,
		rec.StudiedCount,
		rec.LeftUnstudiedCount,
		humanize.Comma(int64(math.Round(rec.AvgSecondarySpend))),
	)
}
