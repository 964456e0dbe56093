package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/livetrack/livetrack/internal/core"
	"github.com/livetrack/livetrack/internal/core/engine"
	"github.com/livetrack/livetrack/internal/core/store"
)

const timeLayout = "2006-01-02 15:04:05.000"

// OutcomeView renders a single write outcome.
func OutcomeView(outcome core.Outcome) Tabular {
	return Tabular{
		Title:  "Write outcome",
		Header: []string{"Identity", "State", "Result", "Via", "Status", "Attempts", "Duration", "Detail"},
		Rows:   [][]string{outcomeRow(outcome)},
		Raw:    outcome,
	}
}

// LedgerView renders rate ledger entries with the time left in each window.
func LedgerView(entries []engine.LedgerEntry, minInterval time.Duration, now time.Time) Tabular {
	rows := make([][]string, 0, len(entries))
	blocked := 0
	for _, entry := range entries {
		remaining := minInterval - now.Sub(entry.LastAttempt)
		window := "open"
		if remaining > 0 {
			window = remaining.Round(time.Millisecond).String()
			blocked++
		}
		rows = append(rows, []string{
			string(entry.Identity),
			entry.LastAttempt.UTC().Format(timeLayout),
			window,
		})
	}
	if entries == nil {
		entries = []engine.LedgerEntry{}
	}
	return Tabular{
		Title:  "Rate ledger",
		Header: []string{"Identity", "Last attempt (UTC)", "Window"},
		Rows:   rows,
		Footer: fmt.Sprintf("%d entries, %d rate-limited", len(rows), blocked),
		Raw:    entries,
	}
}

// JournalView renders persisted outcomes, newest first.
func JournalView(entries []store.JournalEntry) Tabular {
	rows := make([][]string, 0, len(entries))
	written := 0
	for _, entry := range entries {
		row := append([]string{entry.Outcome.FinishedAt.UTC().Format(timeLayout)}, outcomeRow(entry.Outcome)...)
		rows = append(rows, row)
		if entry.Outcome.Written() {
			written++
		}
	}
	if entries == nil {
		entries = []store.JournalEntry{}
	}
	return Tabular{
		Title:  "Write journal",
		Header: []string{"Finished (UTC)", "Identity", "State", "Result", "Via", "Status", "Attempts", "Duration", "Detail"},
		Rows:   rows,
		Footer: fmt.Sprintf("%d/%d written", written, len(rows)),
		Raw:    entries,
	}
}

// StatusView renders a reconciler status.
func StatusView(status engine.Status) Tabular {
	lastTick := "never"
	if status.LastTick != nil {
		lastTick = status.LastTick.UTC().Format(timeLayout)
	}
	settling := "no"
	if status.ResumeAt != nil {
		settling = "until " + status.ResumeAt.UTC().Format(timeLayout)
	}
	observed := make([]string, 0, len(status.Observed))
	for _, id := range status.Observed {
		observed = append(observed, string(id))
	}
	page := status.Page
	if page == "" {
		page = "-"
	}

	return Tabular{
		Title:  "Reconciler",
		Header: []string{"Field", "Value"},
		Rows: [][]string{
			{"Page", page},
			{"Observed", fmt.Sprintf("%d [%s]", len(observed), strings.Join(observed, ", "))},
			{"Ticks", strconv.FormatUint(status.Ticks, 10)},
			{"Last tick", lastTick},
			{"Settling", settling},
			{"Written", strconv.FormatInt(status.Written, 10)},
			{"Failed", strconv.FormatInt(status.Failed, 10)},
			{"Skipped (rate-limited)", strconv.FormatInt(status.Skipped, 10)},
			{"In flight", strconv.Itoa(status.InFlight)},
			{"Ledger size", strconv.Itoa(status.LedgerSize)},
			{"Poll interval", status.PollEvery},
			{"Min update interval", status.MinInterval},
		},
		Raw: status,
	}
}

// Extraction is one label run through the identity extractor.
type Extraction struct {
	Label    string        `json:"label"`
	Identity core.Identity `json:"identity,omitempty"`
	OK       bool          `json:"ok"`
}

// ExtractionView renders extractor results.
func ExtractionView(results []Extraction) Tabular {
	rows := make([][]string, 0, len(results))
	accepted := 0
	for _, r := range results {
		id := "(rejected)"
		if r.OK {
			id = string(r.Identity)
			accepted++
		}
		rows = append(rows, []string{r.Label, id})
	}
	return Tabular{
		Header: []string{"Label", "Identity"},
		Rows:   rows,
		Footer: fmt.Sprintf("%d/%d accepted", accepted, len(rows)),
		Raw:    results,
	}
}

func outcomeRow(o core.Outcome) []string {
	state := "inactive"
	if o.Record.IsActive {
		state = "active"
	}
	result := string(o.Kind)
	if o.Reason != core.ReasonNone {
		result += " (" + string(o.Reason) + ")"
	}
	via := string(o.Via)
	if via == "" {
		via = "-"
	}
	status := "-"
	if o.StatusCode != 0 {
		status = strconv.Itoa(o.StatusCode)
	}
	duration := "-"
	if d := o.Duration(); d > 0 {
		duration = d.Round(time.Millisecond).String()
	}
	return []string{
		"@" + string(o.Record.Identity),
		state,
		result,
		via,
		status,
		strconv.Itoa(o.Attempts),
		duration,
		truncate(o.Detail, 80),
	}
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}

// EventsView renders recent reconciler events, newest first.
func EventsView(events []core.Event) Tabular {
	rows := make([][]string, 0, len(events))
	for _, event := range events {
		identity := "-"
		if event.Identity != "" {
			identity = "@" + string(event.Identity)
		}
		rows = append(rows, []string{
			event.Timestamp.UTC().Format(timeLayout),
			string(event.Severity),
			identity,
			truncate(event.Message, 100),
		})
	}
	if events == nil {
		events = []core.Event{}
	}
	return Tabular{
		Title:  "Recent events",
		Header: []string{"Time (UTC)", "Severity", "Identity", "Message"},
		Rows:   rows,
		Raw:    events,
	}
}
