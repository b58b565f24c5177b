package validator

import "time"

// CalendarDateLayout is the layout accepted by the calendar_date rule.
const CalendarDateLayout = "2006-01-02"

func isCalendarDate(value string) bool {
	if value == "" {
		return true
	}
	_, err := time.Parse(CalendarDateLayout, value)
	return err == nil
}
