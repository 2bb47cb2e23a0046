// Package slotgen turns busy intervals into candidate meeting slots.
//
// Generate is advisory: invalid options produce an empty result rather than
// an error. All day and business-hour arithmetic happens in the wall-clock
// zone given by Options.Location.
package slotgen

import (
	"time"
)

const (
	DefaultBusinessHourStart = 9
	DefaultBusinessHourEnd   = 18
	DefaultStepMinutes       = 30
	DefaultMaxResults        = 100

	dateLayout = "2006-01-02"
)

// Interval is a busy period. End is exclusive.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Options constrain candidate generation. Zero values for the hour, step and
// max fields are replaced by their defaults; use WithDefaults to inspect the
// effective values.
type Options struct {
	StartDate         string
	EndDate           string
	DurationMinutes   int
	BusinessHourStart *int
	BusinessHourEnd   *int
	StepMinutes       int
	MaxResults        int
	Location          *time.Location
}

// Candidate is one proposed slot. DayOfWeek (0=Sunday) and DateKey are
// derived from StartAt in the options' location.
type Candidate struct {
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	DayOfWeek int       `json:"day_of_week"`
	DateKey   string    `json:"date_key"`
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.BusinessHourStart == nil {
		h := DefaultBusinessHourStart
		o.BusinessHourStart = &h
	}
	if o.BusinessHourEnd == nil {
		h := DefaultBusinessHourEnd
		o.BusinessHourEnd = &h
	}
	if o.StepMinutes == 0 {
		o.StepMinutes = DefaultStepMinutes
	}
	if o.MaxResults == 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Generate returns up to MaxResults weekday slots of DurationMinutes inside
// business hours that do not overlap any busy interval.
func Generate(busy []Interval, opts Options) []Candidate {
	opts = opts.WithDefaults()
	startHour, endHour := *opts.BusinessHourStart, *opts.BusinessHourEnd
	if opts.DurationMinutes <= 0 || opts.StepMinutes <= 0 || opts.MaxResults <= 0 {
		return []Candidate{}
	}
	if startHour < 0 || endHour > 24 || startHour >= endHour {
		return []Candidate{}
	}
	loc := opts.Location
	first, err := time.ParseInLocation(dateLayout, opts.StartDate, loc)
	if err != nil {
		return []Candidate{}
	}
	last, err := time.ParseInLocation(dateLayout, opts.EndDate, loc)
	if err != nil || first.After(last) {
		return []Candidate{}
	}

	duration := time.Duration(opts.DurationMinutes) * time.Minute
	step := time.Duration(opts.StepMinutes) * time.Minute
	out := []Candidate{}

	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if !isBusinessDay(day.Weekday()) {
			continue
		}
		y, m, d := day.Date()
		open := time.Date(y, m, d, startHour, 0, 0, 0, loc)
		closeAt := time.Date(y, m, d, endHour, 0, 0, 0, loc)
		dayBusy := overlapping(busy, open, closeAt)

		for slotStart := open; ; slotStart = slotStart.Add(step) {
			slotEnd := slotStart.Add(duration)
			if slotEnd.After(closeAt) {
				break
			}
			if conflicts(dayBusy, slotStart, slotEnd) {
				continue
			}
			local := slotStart.In(loc)
			out = append(out, Candidate{
				StartAt:   slotStart,
				EndAt:     slotEnd,
				DayOfWeek: int(local.Weekday()),
				DateKey:   local.Format(dateLayout),
			})
			if len(out) >= opts.MaxResults {
				return out
			}
		}
	}
	return out
}

func isBusinessDay(wd time.Weekday) bool {
	return wd >= time.Monday && wd <= time.Friday
}

// overlapping keeps only the intervals that touch [from, to).
func overlapping(busy []Interval, from, to time.Time) []Interval {
	var res []Interval
	for _, b := range busy {
		if Overlaps(b.Start, b.End, from, to) {
			res = append(res, b)
		}
	}
	return res
}

func conflicts(busy []Interval, start, end time.Time) bool {
	for _, b := range busy {
		if Overlaps(b.Start, b.End, start, end) {
			return true
		}
	}
	return false
}

// Overlaps is the half-open interval test: touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
