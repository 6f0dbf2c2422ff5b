package receiver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/evalwatch/dbopen"
	"github.com/hazyhaar/evalwatch/extract"
	"github.com/hazyhaar/evalwatch/receiver"
)

func sampleRecord() extract.Record {
	return extract.Record{
		UserID: "u-1",
		UserData: map[string]string{
			"Username":     "alice",
			"Group number": "42",
			"Role":         "student",
		},
		UserMessage: "I want to be a data engineer",
		SessionID:   "s-1",
		Vacancy: map[string][]string{
			"Required skills (relevant)": {"Python", "SQL"},
			"Required skills (removed)":  {"Excel"},
		},
		EduGroups: []extract.Group{{
			Label: "Group A",
			Courses: []extract.Course{{
				"Discipline ID":     "d-1",
				"Discipline":        "Databases",
				"Department":        "CS",
				"Course number":     "3",
				"Relevance":         "6",
				"Skills (relevant)": []string{"Modeling"},
				"Skills (removed)":  []string{"Tuning"},
			}},
		}},
		AdditionalVacancySkills:  []string{"Kafka"},
		AdditionalSubjectsSkills: []string{},
		AdditionalRanges: map[string]string{
			"Usefulness":  "5",
			"Demand":      "4",
			"Convenience": "7",
		},
		Feedback: "Great tool",
		Time: &extract.Timing{
			Hours: 1, Minutes: 2, Seconds: 5, Milliseconds: 4,
			StartTimestamp: "1700000000.00000",
			EndTimestamp:   "1700003725.00400",
			ElapsedMS:      3_725_004,
			ElapsedS:       "3725.004",
		},
	}
}

func submit(t *testing.T, url string, body any) map[string]string {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url+"/api/submit", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestSubmitStoresRecord(t *testing.T) {
	db := dbopen.OpenMemory(t)
	svc, err := receiver.New(receiver.Config{DB: db})
	if err != nil {
		t.Fatalf("receiver.New: %v", err)
	}
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	out := submit(t, srv.URL, sampleRecord())
	if out["status"] != "success" {
		t.Fatalf("response = %v, want success", out)
	}

	var username string
	if err := db.QueryRow(`SELECT username FROM users WHERE user_id = 'u-1'`).Scan(&username); err != nil {
		t.Fatalf("users row: %v", err)
	}
	if username != "alice" {
		t.Fatalf("username = %q, want alice", username)
	}

	var discipline, relevant, removed string
	var relevance int
	err = db.QueryRow(
		`SELECT discipline, relevance, relevant_skills, unrelated_skills
		 FROM courses WHERE session_id = 's-1' AND course_id = 'd-1'`,
	).Scan(&discipline, &relevance, &relevant, &removed)
	if err != nil {
		t.Fatalf("courses row: %v", err)
	}
	if discipline != "Databases" || relevance != 6 {
		t.Fatalf("course = %q/%d, want Databases/6", discipline, relevance)
	}
	if relevant != "Modeling" || removed != "Tuning" {
		t.Fatalf("skills = %q / %q", relevant, removed)
	}

	var utility, popularity, comfort int
	var vacRelevant string
	err = db.QueryRow(
		`SELECT utility, popularity, comfort, relevant_vacancy_skills
		 FROM feedback WHERE session_id = 's-1'`,
	).Scan(&utility, &popularity, &comfort, &vacRelevant)
	if err != nil {
		t.Fatalf("feedback row: %v", err)
	}
	if utility != 5 || popularity != 4 || comfort != 7 {
		t.Fatalf("ratings = %d/%d/%d, want 5/4/7", utility, popularity, comfort)
	}
	if vacRelevant != "Python; SQL" {
		t.Fatalf("relevant vacancy skills = %q", vacRelevant)
	}

	var elapsedMS float64
	var hours int
	err = db.QueryRow(
		`SELECT elapsed_time_ms, hours FROM session_time WHERE session_id = 's-1'`,
	).Scan(&elapsedMS, &hours)
	if err != nil {
		t.Fatalf("session_time row: %v", err)
	}
	if elapsedMS != 3_725_004 || hours != 1 {
		t.Fatalf("timing = %v ms / %d h", elapsedMS, hours)
	}
}

func TestCustomLabelsSelectStoredFields(t *testing.T) {
	db := dbopen.OpenMemory(t)
	labels := receiver.MergedLabels(receiver.Labels{Username: "Имя пользователя"})
	svc, err := receiver.New(receiver.Config{DB: db, Labels: labels})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	rec := sampleRecord()
	rec.UserData = map[string]string{
		"Имя пользователя": "боб",
		"Group number":     "42",
		"Role":             "student",
	}
	submit(t, srv.URL, rec)

	var username, groupNumber string
	if err := db.QueryRow(`SELECT username, group_number FROM users WHERE user_id = 'u-1'`).Scan(&username, &groupNumber); err != nil {
		t.Fatalf("users row: %v", err)
	}
	if username != "боб" {
		t.Fatalf("username = %q, want the relabeled field", username)
	}
	if groupNumber != "42" {
		t.Fatalf("group_number = %q, want the canonical label to keep working", groupNumber)
	}
}

func TestMergedLabelsPartialOverride(t *testing.T) {
	l := receiver.MergedLabels(receiver.Labels{Discipline: "Dyscyplina"})
	if l.Discipline != "Dyscyplina" {
		t.Fatalf("discipline = %q", l.Discipline)
	}
	if l.Skills != "Skills" || l.RelevantSuffix != " (relevant)" {
		t.Fatalf("untouched labels changed: %+v", l)
	}
}

func TestSubmitMissingUserID(t *testing.T) {
	db := dbopen.OpenMemory(t)
	svc, err := receiver.New(receiver.Config{DB: db})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	rec := sampleRecord()
	rec.UserID = ""
	out := submit(t, srv.URL, rec)
	if out["status"] != "error" {
		t.Fatalf("response = %v, want error status", out)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM feedback`).Scan(&count)
	if count != 0 {
		t.Fatalf("feedback rows = %d, want 0", count)
	}
}

func TestSubmitMalformedBody(t *testing.T) {
	db := dbopen.OpenMemory(t)
	svc, err := receiver.New(receiver.Config{DB: db})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/submit", "application/json", bytes.NewReader([]byte("{broken")))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "error" {
		t.Fatalf("response = %v, want error status", out)
	}
}

func TestResubmitUpserts(t *testing.T) {
	db := dbopen.OpenMemory(t)
	svc, err := receiver.New(receiver.Config{DB: db})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	submit(t, srv.URL, sampleRecord())

	rec := sampleRecord()
	rec.Feedback = "Changed my mind"
	submit(t, srv.URL, rec)

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM feedback WHERE session_id = 's-1'`).Scan(&count)
	if count != 1 {
		t.Fatalf("feedback rows = %d, want 1 after resubmit", count)
	}
	var comment string
	db.QueryRow(`SELECT feedback_comment FROM feedback WHERE session_id = 's-1'`).Scan(&comment)
	if comment != "Changed my mind" {
		t.Fatalf("feedback_comment = %q, want the resubmitted value", comment)
	}
}

func TestFreeTextIsSanitized(t *testing.T) {
	db := dbopen.OpenMemory(t)
	svc, err := receiver.New(receiver.Config{DB: db})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	rec := sampleRecord()
	rec.UserMessage = "<b>bold</b> move"
	submit(t, srv.URL, rec)

	var message string
	db.QueryRow(`SELECT message FROM feedback WHERE session_id = 's-1'`).Scan(&message)
	if message != "bold move" {
		t.Fatalf("message = %q, want markup stripped", message)
	}
}

func TestCORSPreflight(t *testing.T) {
	db := dbopen.OpenMemory(t)
	svc, err := receiver.New(receiver.Config{DB: db})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/submit", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin = %q, want *", got)
	}
}
