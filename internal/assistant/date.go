package assistant

import "time"

// DateContext anchors relative time phrases for one request.
type DateContext struct {
	ISODate      string
	DayOfWeek    string
	CurrentYear  int
	PreviousYear int
}

func NewDateContext(now time.Time) DateContext {
	year := now.Year()
	return DateContext{
		ISODate:      now.Format("2006-01-02"),
		DayOfWeek:    now.Weekday().String(),
		CurrentYear:  year,
		PreviousYear: year - 1,
	}
}
