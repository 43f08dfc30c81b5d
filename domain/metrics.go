package domain

import (
	"math"
	"time"
)

// CycleSample is the cycle time of one completed item.
type CycleSample struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	CycleTime      int64   `json:"cycleTime"`
	CycleTimeHours float64 `json:"cycleTimeHours"`
}

// StageAverage is the mean time completed items spent in one column.
type StageAverage struct {
	AvgMs    int64   `json:"avgMs"`
	AvgHours float64 `json:"avgHours"`
	Count    int     `json:"count"`
}

// Metrics summarizes the board. Cycle and stage figures cover items in the terminal column only.
type Metrics struct {
	TotalTasks        int                       `json:"totalTasks"`
	CompletedTasks    int                       `json:"completedTasks"`
	TasksInProgress   int                       `json:"tasksInProgress"`
	TasksInReview     int                       `json:"tasksInReview"`
	AvgCycleTime      *float64                  `json:"avgCycleTime"`
	AvgCycleTimeHours *float64                  `json:"avgCycleTimeHours,omitempty"`
	CycleTimes        []CycleSample             `json:"cycleTimes"`
	AvgTimePerStage   map[ColumnID]StageAverage `json:"avgTimePerStage"`
	ThroughputByDay   map[string]int            `json:"throughputByDay"`
	TasksByColumn     map[ColumnID]int          `json:"tasksByColumn"`
	TasksByAssignee   map[string]int            `json:"tasksByAssignee"`
}

// StageTimes returns the milliseconds the item spent in each column it entered.
// The last entry runs until now. Repeated visits to a column are summed.
func StageTimes(it *Item, now time.Time) map[ColumnID]int64 {
	out := make(map[ColumnID]int64, len(it.StageHistory))
	for i, h := range it.StageHistory {
		end := now
		if i+1 < len(it.StageHistory) {
			end = it.StageHistory[i+1].EnteredAt
		}
		out[h.Column] += end.Sub(h.EnteredAt).Milliseconds()
	}
	return out
}

// CycleTime is the milliseconds between first entering todo and first entering
// the terminal column. ok is false when either entry is missing.
func CycleTime(it *Item) (ms int64, ok bool) {
	start, ok := it.firstEntry(ColumnTodo)
	if !ok {
		return 0, false
	}
	end, ok := it.firstEntry(TerminalColumn)
	if !ok {
		return 0, false
	}
	return end.Sub(start).Milliseconds(), true
}

// ComputeMetrics derives all board metrics from b as of now.
func ComputeMetrics(b *Board, now time.Time) Metrics {
	m := Metrics{
		CycleTimes:      []CycleSample{},
		AvgTimePerStage: map[ColumnID]StageAverage{},
		ThroughputByDay: map[string]int{},
		TasksByColumn:   map[ColumnID]int{},
		TasksByAssignee: map[string]int{"unassigned": 0},
	}
	for _, u := range KnownUsers() {
		m.TasksByAssignee[u] = 0
	}

	stageTotals := map[ColumnID]int64{}
	stageCounts := map[ColumnID]int{}
	var cycleTotal int64

	for _, col := range b.Columns {
		m.TasksByColumn[col.ID] = len(col.Items)
		m.TotalTasks += len(col.Items)
		switch col.ID {
		case ColumnDoing:
			m.TasksInProgress = len(col.Items)
		case ColumnReview:
			m.TasksInReview = len(col.Items)
		}
		for _, it := range col.Items {
			if a := it.assigneeValue(); a != "" {
				m.TasksByAssignee[a]++
			} else {
				m.TasksByAssignee["unassigned"]++
			}
			if col.ID != TerminalColumn {
				continue
			}
			m.CompletedTasks++
			if ct, ok := CycleTime(it); ok {
				cycleTotal += ct
				m.CycleTimes = append(m.CycleTimes, CycleSample{
					ID:             it.ID,
					Title:          it.Title,
					CycleTime:      ct,
					CycleTimeHours: hours(float64(ct)),
				})
			}
			for stage, ms := range StageTimes(it, now) {
				stageTotals[stage] += ms
				stageCounts[stage]++
			}
			if done, ok := it.firstEntry(TerminalColumn); ok {
				m.ThroughputByDay[done.UTC().Format(time.DateOnly)]++
			}
		}
	}

	if n := len(m.CycleTimes); n > 0 {
		avg := float64(cycleTotal) / float64(n)
		h := hours(avg)
		m.AvgCycleTime, m.AvgCycleTimeHours = &avg, &h
	}
	for stage, total := range stageTotals {
		avg := float64(total) / float64(stageCounts[stage])
		m.AvgTimePerStage[stage] = StageAverage{
			AvgMs:    int64(math.Round(avg)),
			AvgHours: hours(avg),
			Count:    stageCounts[stage],
		}
	}
	return m
}

// hours converts milliseconds to hours rounded to one decimal.
func hours(ms float64) float64 {
	return math.Round(ms/float64(time.Hour/time.Millisecond)*10) / 10
}
