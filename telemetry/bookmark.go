package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkMortalityPulse   BookmarkType = "mortality_pulse"
	BookmarkRecruitmentPulse BookmarkType = "recruitment_pulse"
	BookmarkBasalAreaCrash   BookmarkType = "basal_area_crash"
	BookmarkSteadyState      BookmarkType = "steady_state"
)

// Bookmark marks a timestep where the stand did something worth a closer look.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Step        int          `csv:"step"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"step", b.Step,
		"description", b.Description,
	)
}

// BookmarkDetector detects notable stand dynamics from successive StandStats.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []StandStats
	historySize int
	historyIdx  int
	historyFull bool

	recentBAPeak     float64 // peak basal area since the last crash
	steadyStepsCount int     // consecutive steps with a steady canopy
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for steady-state detection
	}
	return &BookmarkDetector{
		history:     make([]StandStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats StandStats) []Bookmark {
	var bookmarks []Bookmark

	if bd.historyFull || bd.historyIdx > 0 {
		for _, check := range []func(StandStats) *Bookmark{
			bd.checkMortalityPulse,
			bd.checkRecruitmentPulse,
			bd.checkBasalAreaCrash,
			bd.checkSteadyState,
		} {
			if b := check(stats); b != nil {
				bookmarks = append(bookmarks, *b)
			}
		}
	}

	bd.addToHistory(stats)
	if stats.BasalArea > bd.recentBAPeak {
		bd.recentBAPeak = stats.BasalArea
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats StandStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []StandStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// pulse reports a count more than twice its rolling average and at least floor.
func (bd *BookmarkDetector) pulse(current, floor int, of func(StandStats) int) (avg float64, ok bool) {
	history := bd.getHistory()
	if len(history) < 3 {
		return 0, false
	}
	var total int
	for _, h := range history {
		total += of(h)
	}
	avg = float64(total) / float64(len(history))
	return avg, avg > 0 && float64(current) > avg*2 && current >= floor
}

func (bd *BookmarkDetector) checkMortalityPulse(stats StandStats) *Bookmark {
	deaths := stats.Deaths + stats.DisturbDeaths
	avg, ok := bd.pulse(deaths, 5, func(s StandStats) int { return s.Deaths + s.DisturbDeaths })
	if !ok {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkMortalityPulse,
		Step:        stats.Step,
		Description: fmt.Sprintf("%d deaths is %.1fx average (%.1f)", deaths, float64(deaths)/avg, avg),
	}
}

func (bd *BookmarkDetector) checkRecruitmentPulse(stats StandStats) *Bookmark {
	avg, ok := bd.pulse(stats.Establishments, 10, func(s StandStats) int { return s.Establishments })
	if !ok {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkRecruitmentPulse,
		Step:        stats.Step,
		Description: fmt.Sprintf("%d establishments is %.1fx average (%.1f)", stats.Establishments, float64(stats.Establishments)/avg, avg),
	}
}

func (bd *BookmarkDetector) checkBasalAreaCrash(stats StandStats) *Bookmark {
	if bd.recentBAPeak == 0 {
		return nil
	}

	drop := 1 - stats.BasalArea/bd.recentBAPeak
	if drop <= 0.30 {
		return nil
	}
	// Reset peak after crash
	oldPeak := bd.recentBAPeak
	bd.recentBAPeak = stats.BasalArea

	return &Bookmark{
		Type:        BookmarkBasalAreaCrash,
		Step:        stats.Step,
		Description: fmt.Sprintf("Basal area fell %.0f%% from %.1f to %.1f m²/ha", drop*100, oldPeak, stats.BasalArea),
	}
}

func (bd *BookmarkDetector) checkSteadyState(stats StandStats) *Bookmark {
	if stats.Adults < 10 {
		bd.steadyStepsCount = 0
		return nil
	}

	history := bd.getHistory()
	if len(history) < 4 {
		return nil
	}

	recent := history[len(history)-4:]
	if bd.historyFull {
		// newest four in ring order
		recent = make([]StandStats, 4)
		for i := range 4 {
			recent[i] = history[(bd.historyIdx-4+i+bd.historySize)%bd.historySize]
		}
	}

	var adultSum, baSum float64
	for _, h := range recent {
		adultSum += float64(h.Adults)
		baSum += h.BasalArea
	}
	adultMean, baMean := adultSum/4, baSum/4

	var adultVar, baVar float64
	for _, h := range recent {
		da := float64(h.Adults) - adultMean
		db := h.BasalArea - baMean
		adultVar += da * da
		baVar += db * db
	}
	adultVar /= 4
	baVar /= 4

	// squared coefficient of variation below 0.01, CV < 10%
	steady := adultMean > 0 && baMean > 0 &&
		adultVar/(adultMean*adultMean) < 0.01 && baVar/(baMean*baMean) < 0.01
	if steady {
		bd.steadyStepsCount++
	} else {
		bd.steadyStepsCount = 0
	}

	if bd.steadyStepsCount == 5 { // trigger exactly once
		return &Bookmark{
			Type:        BookmarkSteadyState,
			Step:        stats.Step,
			Description: fmt.Sprintf("Steady canopy with %d adults and %.1f m²/ha over 5+ steps", stats.Adults, stats.BasalArea),
		}
	}
	return nil
}
