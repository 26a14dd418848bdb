// Package schedule evaluates business hours for the SDR agent: a timezone
// plus a weekly window per weekday, loaded once and reloadable, with
// environment-driven overrides.
package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vendaflow/sdr-platform/pkg/logger"
)

const (
	// DefaultTimezone is used when no override is configured.
	DefaultTimezone = "America/Sao_Paulo"

	defaultStart = "08:00"
	defaultEnd   = "18:00"
)

// Config carries the evaluator's overrides, injected at construction.
type Config struct {
	// Timezone replaces the default zone wholesale when set.
	Timezone string
	// Start/End replace every weekday's window uniformly when both are set;
	// single days cannot be overridden.
	Start string
	End   string
	// FilePath points to an optional JSON schedule file keyed by lowercase
	// weekday name.
	FilePath string
}

type dayWindow struct {
	startMin int
	endMin   int
}

type fileEntry struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Evaluator answers "is now within business hours". The resolved timezone
// and weekly schedule are cached after the first evaluation; Reload clears
// the cache so configuration changes take effect without a restart.
type Evaluator struct {
	cfg    Config
	logger *logger.Logger

	mu       sync.RWMutex
	loaded   bool
	loc      *time.Location
	schedule map[time.Weekday]*dayWindow
}

// NewEvaluator creates an evaluator with the given overrides.
func NewEvaluator(cfg Config, log *logger.Logger) *Evaluator {
	return &Evaluator{cfg: cfg, logger: log}
}

// IsBusinessHours reports whether the instant falls within the configured
// window for its weekday. Both bounds are inclusive. Days without a schedule
// entry are always closed.
func (e *Evaluator) IsBusinessHours(at time.Time) bool {
	loc, sched := e.load()

	local := at.In(loc)
	window := sched[local.Weekday()]
	if window == nil {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	return minutes >= window.startMin && minutes <= window.endMin
}

// IsBusinessHoursNow evaluates the current instant.
func (e *Evaluator) IsBusinessHoursNow() bool {
	return e.IsBusinessHours(time.Now())
}

// ShouldAutoResume reports whether paused conversations may resume
// automatically: only outside business hours. Inside the window, resumption
// requires an explicit command.
func (e *Evaluator) ShouldAutoResume() bool {
	return !e.IsBusinessHoursNow()
}

// Reload clears the cached timezone and schedule so the next evaluation
// re-reads configuration and the schedule file. Idempotent.
func (e *Evaluator) Reload() {
	e.mu.Lock()
	e.loaded = false
	e.loc = nil
	e.schedule = nil
	e.mu.Unlock()
}

func (e *Evaluator) load() (*time.Location, map[time.Weekday]*dayWindow) {
	e.mu.RLock()
	if e.loaded {
		loc, sched := e.loc, e.schedule
		e.mu.RUnlock()
		return loc, sched
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return e.loc, e.schedule
	}

	e.loc = e.resolveTimezone()
	e.schedule = e.buildSchedule()
	e.loaded = true
	return e.loc, e.schedule
}

func (e *Evaluator) resolveTimezone() *time.Location {
	name := e.cfg.Timezone
	if name == "" {
		name = DefaultTimezone
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		e.logger.Warn("unknown business-hours timezone, falling back to default",
			zap.String("timezone", name), zap.Error(err))
		loc, err = time.LoadLocation(DefaultTimezone)
		if err != nil {
			return time.UTC
		}
	}
	return loc
}

func (e *Evaluator) buildSchedule() map[time.Weekday]*dayWindow {
	sched := e.defaultSchedule()

	if e.cfg.FilePath != "" {
		e.applyFile(sched, e.cfg.FilePath)
	}

	// The uniform override replaces every weekday window; it cannot touch
	// single days.
	if e.cfg.Start != "" || e.cfg.End != "" {
		start, errS := parseClock(e.cfg.Start)
		end, errE := parseClock(e.cfg.End)
		if errS != nil || errE != nil {
			e.logger.Warn("malformed business-hours override ignored",
				zap.String("start", e.cfg.Start), zap.String("end", e.cfg.End))
		} else {
			for day := time.Monday; day <= time.Friday; day++ {
				sched[day] = &dayWindow{startMin: start, endMin: end}
			}
		}
	}

	return sched
}

func (e *Evaluator) defaultSchedule() map[time.Weekday]*dayWindow {
	start, _ := parseClock(defaultStart)
	end, _ := parseClock(defaultEnd)

	sched := make(map[time.Weekday]*dayWindow)
	for day := time.Monday; day <= time.Friday; day++ {
		sched[day] = &dayWindow{startMin: start, endMin: end}
	}
	return sched
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// applyFile replaces the schedule with the file's contents. Days absent from
// the file are closed; malformed entries degrade to closed for that day
// rather than failing the whole load.
func (e *Evaluator) applyFile(sched map[time.Weekday]*dayWindow, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		e.logger.Warn("failed to read business-hours file, keeping defaults",
			zap.String("path", path), zap.Error(err))
		return
	}

	var entries map[string]fileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		e.logger.Warn("malformed business-hours file, keeping defaults",
			zap.String("path", path), zap.Error(err))
		return
	}

	for day := time.Sunday; day <= time.Saturday; day++ {
		sched[day] = nil
	}
	for name, entry := range entries {
		day, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			e.logger.Warn("unknown weekday in business-hours file", zap.String("day", name))
			continue
		}
		start, errS := parseClock(entry.Start)
		end, errE := parseClock(entry.End)
		if errS != nil || errE != nil || end < start {
			e.logger.Warn("malformed schedule entry, treating day as closed",
				zap.String("day", name))
			sched[day] = nil
			continue
		}
		sched[day] = &dayWindow{startMin: start, endMin: end}
	}
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(value string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock value %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("malformed hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("malformed minute in %q", value)
	}
	return hour*60 + minute, nil
}
