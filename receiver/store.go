package receiver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/evalwatch/dbopen"
	"github.com/hazyhaar/evalwatch/extract"
)

// ErrMissingUserID rejects records without a user identifier.
var ErrMissingUserID = errors.New("receiver: user_id missing from record")

// Labels maps the label keys appearing inside a submitted record to
// database columns. Records carry page labels as data, so deployments
// against a differently labeled page only need to override these.
type Labels struct {
	Username    string `yaml:"username"`
	GroupNumber string `yaml:"group_number"`
	Role        string `yaml:"role"`

	CourseID     string `yaml:"course_id"`
	Discipline   string `yaml:"discipline"`
	Department   string `yaml:"department"`
	Faculty      string `yaml:"faculty"`
	Campus       string `yaml:"campus"`
	Level        string `yaml:"level"`
	Audience     string `yaml:"audience"`
	Format       string `yaml:"format"`
	CourseNumber string `yaml:"course_number"`
	Relevance    string `yaml:"relevance"`
	Skills       string `yaml:"skills"`

	VacancySkills string `yaml:"vacancy_skills"`

	Usefulness  string `yaml:"usefulness"`
	Demand      string `yaml:"demand"`
	Convenience string `yaml:"convenience"`

	RelevantSuffix string `yaml:"relevant_suffix"`
	RemovedSuffix  string `yaml:"removed_suffix"`
}

// DefaultLabels returns the canonical label set.
func DefaultLabels() Labels {
	return Labels{
		Username:    "Username",
		GroupNumber: "Group number",
		Role:        "Role",

		CourseID:     "Discipline ID",
		Discipline:   "Discipline",
		Department:   "Department",
		Faculty:      "Faculty",
		Campus:       "Campus",
		Level:        "Level",
		Audience:     "Audience",
		Format:       "Format",
		CourseNumber: "Course number",
		Relevance:    "Relevance",
		Skills:       "Skills",

		VacancySkills: "Required skills",

		Usefulness:  "Usefulness",
		Demand:      "Demand",
		Convenience: "Convenience",

		RelevantSuffix: " (relevant)",
		RemovedSuffix:  " (removed)",
	}
}

// MergedLabels overlays o on the default labels, field by field, so a
// partial override keeps the canonical headings for everything else.
func MergedLabels(o Labels) Labels {
	merged := DefaultLabels()
	overlay := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	overlay(&merged.Username, o.Username)
	overlay(&merged.GroupNumber, o.GroupNumber)
	overlay(&merged.Role, o.Role)
	overlay(&merged.CourseID, o.CourseID)
	overlay(&merged.Discipline, o.Discipline)
	overlay(&merged.Department, o.Department)
	overlay(&merged.Faculty, o.Faculty)
	overlay(&merged.Campus, o.Campus)
	overlay(&merged.Level, o.Level)
	overlay(&merged.Audience, o.Audience)
	overlay(&merged.Format, o.Format)
	overlay(&merged.CourseNumber, o.CourseNumber)
	overlay(&merged.Relevance, o.Relevance)
	overlay(&merged.Skills, o.Skills)
	overlay(&merged.VacancySkills, o.VacancySkills)
	overlay(&merged.Usefulness, o.Usefulness)
	overlay(&merged.Demand, o.Demand)
	overlay(&merged.Convenience, o.Convenience)
	overlay(&merged.RelevantSuffix, o.RelevantSuffix)
	overlay(&merged.RemovedSuffix, o.RemovedSuffix)
	return merged
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    user_id      TEXT PRIMARY KEY,
    username     TEXT,
    group_number TEXT,
    role         TEXT
);
CREATE TABLE IF NOT EXISTS courses (
    user_id          TEXT,
    session_id       TEXT,
    course_id        TEXT,
    label            TEXT,
    discipline       TEXT,
    department       TEXT,
    faculty          TEXT,
    campus           TEXT,
    level            TEXT,
    audience         TEXT,
    format           TEXT,
    course_number    TEXT,
    relevance        INTEGER,
    relevant_skills  TEXT,
    unrelated_skills TEXT,
    PRIMARY KEY (session_id, course_id)
);
CREATE TABLE IF NOT EXISTS feedback (
    user_id                  TEXT,
    session_id               TEXT PRIMARY KEY,
    message                  TEXT,
    feedback_comment         TEXT,
    utility                  INTEGER,
    popularity               INTEGER,
    comfort                  INTEGER,
    relevant_vacancy_skills  TEXT,
    unrelated_vacancy_skills TEXT,
    additional_vacancy_skills TEXT,
    additional_subject_skills TEXT
);
CREATE TABLE IF NOT EXISTS session_time (
    user_id         TEXT,
    session_id      TEXT PRIMARY KEY,
    start_timestamp TEXT,
    end_timestamp   TEXT,
    elapsed_time_ms REAL,
    elapsed_time_s  REAL,
    hours           INTEGER,
    minutes         INTEGER,
    seconds         INTEGER,
    milliseconds    INTEGER
);
`

// Store persists submitted records. Each Save is one transaction with
// upsert semantics, so resubmitting a session overwrites its rows.
type Store struct {
	db     *sql.DB
	labels Labels
	clean  *bluemonday.Policy
}

// NewStore creates a Store and applies the schema.
func NewStore(db *sql.DB, labels Labels) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("receiver: DB is required")
	}
	if labels == (Labels{}) {
		labels = DefaultLabels()
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("receiver: schema: %w", err)
		}
	}
	return &Store{
		db:     db,
		labels: labels,
		clean:  bluemonday.StrictPolicy(),
	}, nil
}

// Save persists one record into the four tables.
func (s *Store) Save(ctx context.Context, rec extract.Record) error {
	if rec.UserID == "" {
		return ErrMissingUserID
	}
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.saveUser(tx, rec); err != nil {
			return err
		}
		if err := s.saveCourses(tx, rec); err != nil {
			return err
		}
		if err := s.saveFeedback(tx, rec); err != nil {
			return err
		}
		return s.saveTiming(tx, rec)
	})
}

func (s *Store) saveUser(tx *sql.Tx, rec extract.Record) error {
	_, err := tx.Exec(
		`INSERT OR REPLACE INTO users (user_id, username, group_number, role)
		 VALUES (?, ?, ?, ?)`,
		rec.UserID,
		s.sanitize(rec.UserData[s.labels.Username]),
		rec.UserData[s.labels.GroupNumber],
		rec.UserData[s.labels.Role],
	)
	if err != nil {
		return fmt.Errorf("receiver: users: %w", err)
	}
	return nil
}

func (s *Store) saveCourses(tx *sql.Tx, rec extract.Record) error {
	l := s.labels
	for _, group := range rec.EduGroups {
		for _, course := range group.Courses {
			_, err := tx.Exec(
				`INSERT OR REPLACE INTO courses (
				    user_id, session_id, course_id, label, discipline, department,
				    faculty, campus, level, audience, format, course_number,
				    relevance, relevant_skills, unrelated_skills
				 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.UserID,
				rec.SessionID,
				strField(course, l.CourseID),
				group.Label,
				strField(course, l.Discipline),
				strField(course, l.Department),
				strField(course, l.Faculty),
				strField(course, l.Campus),
				strField(course, l.Level),
				strField(course, l.Audience),
				strField(course, l.Format),
				strField(course, l.CourseNumber),
				intField(course, l.Relevance, 0),
				joinSkills(course, l.Skills+l.RelevantSuffix),
				joinSkills(course, l.Skills+l.RemovedSuffix),
			)
			if err != nil {
				return fmt.Errorf("receiver: courses: %w", err)
			}
		}
	}
	return nil
}

func (s *Store) saveFeedback(tx *sql.Tx, rec extract.Record) error {
	l := s.labels
	_, err := tx.Exec(
		`INSERT OR REPLACE INTO feedback (
		    user_id, session_id, message, feedback_comment, utility, popularity,
		    comfort, relevant_vacancy_skills, unrelated_vacancy_skills,
		    additional_vacancy_skills, additional_subject_skills
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID,
		rec.SessionID,
		s.sanitize(rec.UserMessage),
		s.sanitize(rec.Feedback),
		rating(rec.AdditionalRanges, l.Usefulness),
		rating(rec.AdditionalRanges, l.Demand),
		rating(rec.AdditionalRanges, l.Convenience),
		strings.Join(rec.Vacancy[l.VacancySkills+l.RelevantSuffix], "; "),
		strings.Join(rec.Vacancy[l.VacancySkills+l.RemovedSuffix], "; "),
		strings.Join(rec.AdditionalVacancySkills, "; "),
		strings.Join(rec.AdditionalSubjectsSkills, "; "),
	)
	if err != nil {
		return fmt.Errorf("receiver: feedback: %w", err)
	}
	return nil
}

func (s *Store) saveTiming(tx *sql.Tx, rec extract.Record) error {
	if rec.Time == nil {
		return nil
	}
	t := rec.Time
	elapsedS, _ := strconv.ParseFloat(t.ElapsedS, 64)
	_, err := tx.Exec(
		`INSERT OR REPLACE INTO session_time (
		    user_id, session_id, start_timestamp, end_timestamp,
		    elapsed_time_ms, elapsed_time_s, hours, minutes, seconds, milliseconds
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID,
		rec.SessionID,
		t.StartTimestamp,
		t.EndTimestamp,
		float64(t.ElapsedMS),
		elapsedS,
		t.Hours,
		t.Minutes,
		t.Seconds,
		t.Milliseconds,
	)
	if err != nil {
		return fmt.Errorf("receiver: session_time: %w", err)
	}
	return nil
}

func (s *Store) sanitize(text string) string {
	return strings.TrimSpace(s.clean.Sanitize(text))
}

func strField(c extract.Course, key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

func intField(c extract.Course, key string, fallback int) int {
	if v, ok := c[key].(string); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	// Decoded JSON numbers arrive as float64.
	if v, ok := c[key].(float64); ok {
		return int(v)
	}
	return fallback
}

func joinSkills(c extract.Course, key string) string {
	switch v := c[key].(type) {
	case []string:
		return strings.Join(v, "; ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

func rating(ranges map[string]string, key string) int {
	if v, ok := ranges[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 4
}
