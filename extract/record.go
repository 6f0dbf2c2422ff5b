package extract

// Record is the structured output of one extraction pass. Built fresh on
// every call, never mutated afterwards, serialized as-is toward the
// receiver. The JSON key set is the submission wire contract.
type Record struct {
	UserID                   string              `json:"user_id"`
	UserData                 map[string]string   `json:"user_data"`
	UserMessage              string              `json:"user_message"`
	SessionID                string              `json:"session_id"`
	Vacancy                  map[string][]string `json:"vacancy"`
	EduGroups                []Group             `json:"edu_groups"`
	AdditionalVacancySkills  []string            `json:"additional_vacancy_skills"`
	AdditionalSubjectsSkills []string            `json:"additional_subjects_skills"`
	AdditionalRanges         map[string]string   `json:"additional_ranges,omitempty"`
	Feedback                 string              `json:"feedback"`

	// Time is the one field allowed to be structurally absent: nil when no
	// start timestamp was recoverable.
	Time *Timing `json:"time,omitempty"`
}

// Group is one ordered education group with its courses.
type Group struct {
	Label   string   `json:"label"`
	Courses []Course `json:"courses"`
}

// Course is the union of label→value pairs discovered in a course block:
// info-item details (string values), one relevance rating (string value),
// and the relevant/removed skill lists ([]string values).
type Course map[string]any

// Timing decomposes the elapsed session time. Timestamps are epoch seconds
// rendered with fixed precision, matching the receiver's storage format.
type Timing struct {
	Hours          int    `json:"hours"`
	Minutes        int    `json:"minutes"`
	Seconds        int    `json:"seconds"`
	Milliseconds   int    `json:"milliseconds"`
	StartTimestamp string `json:"start_timestamp"` // epoch seconds, 5 decimals
	EndTimestamp   string `json:"end_timestamp"`   // epoch seconds, 5 decimals
	ElapsedMS      int64  `json:"elapsed_time_ms"`
	ElapsedS       string `json:"elapsed_time_s"` // seconds, 3 decimals
}

// SplitElapsed decomposes a non-negative millisecond delta into whole
// hours, minutes, seconds, and the millisecond remainder.
func SplitElapsed(ms int64) (hours, minutes, seconds, millis int) {
	hours = int(ms / 3_600_000)
	ms %= 3_600_000
	minutes = int(ms / 60_000)
	ms %= 60_000
	seconds = int(ms / 1_000)
	millis = int(ms % 1_000)
	return hours, minutes, seconds, millis
}
