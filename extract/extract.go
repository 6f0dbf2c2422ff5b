// Package extract walks the rendered conversation in the mirror document
// and produces a single hierarchical Record.
//
// Two hard preconditions anchor the walk: the bot response container must
// exist, and the subject info block must be its direct child; without
// them the rest of the tree is meaningless and extraction aborts. Every
// other missing element degrades to a sentinel default instead, so the
// record shape is stable no matter how much of the page has rendered.
package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoAnchor is returned when a hard structural precondition fails.
var ErrNoAnchor = errors.New("extract: required anchor missing")

// Extractor is a reusable, read-only extraction pass over a document.
type Extractor struct {
	schema Schema
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSchema replaces the default schema.
func WithSchema(s Schema) Option {
	return func(e *Extractor) { e.schema = s }
}

// WithClock overrides the end-of-session clock. Tests pin it.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New creates an Extractor with the canonical schema.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		schema: DefaultSchema(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract builds a Record from the document, or returns an error wrapping
// ErrNoAnchor when a hard anchor is missing.
func (e *Extractor) Extract(doc *goquery.Document) (*Record, error) {
	s := e.schema

	rec := &Record{
		UserID:      orNoData(inputVal(doc.Find(s.UserID).First())),
		UserData:    e.userData(doc),
		UserMessage: orNoData(textOf(doc.Find(s.UserMessage).First())),
		SessionID:   orNoData(inputVal(doc.Find(s.SessionID).First())),
		EduGroups:   []Group{},
	}

	bot := doc.Find(s.BotMessage).First()
	if bot.Length() == 0 {
		e.logger.Error("extract: bot response container not found", "selector", s.BotMessage)
		return nil, fmt.Errorf("%w: bot response container", ErrNoAnchor)
	}

	subject := bot.Find(s.SubjectInfo).First()
	if subject.Length() == 0 || subject.Get(0).Parent != bot.Get(0) {
		e.logger.Error("extract: subject info block missing or not a direct child",
			"selector", s.SubjectInfo)
		return nil, fmt.Errorf("%w: subject info block", ErrNoAnchor)
	}
	rec.Vacancy = e.skills(subject, s.SkillScope)

	groups := bot.Find(s.EduGroup)
	if groups.Length() == 0 {
		e.logger.Debug("extract: no education groups found", "selector", s.EduGroup)
	}
	groups.Each(func(i int, g *goquery.Selection) {
		label := textOf(g.Find("span").First())
		if label == "" {
			label = fmt.Sprintf(s.GroupLabelFormat, i+1)
		}
		courses := []Course{}
		g.Find(s.CourseInfo).Each(func(_ int, info *goquery.Selection) {
			courses = append(courses, e.course(info))
		})
		rec.EduGroups = append(rec.EduGroups, Group{Label: label, Courses: courses})
	})

	rec.AdditionalVacancySkills = e.tokenList(doc, s.VacancySkills)
	rec.AdditionalSubjectsSkills = e.tokenList(doc, s.SubjectSkills)
	rec.AdditionalRanges = e.ratings(doc)
	rec.Feedback = orNoData(textOf(doc.Find(s.Feedback).First()))
	rec.Time = e.timing(doc)

	return rec, nil
}

// userData reads up to three labeled identity fields. Labels come from
// adjacent markup; both label and value default to the sentinel.
func (e *Extractor) userData(doc *goquery.Document) map[string]string {
	s := e.schema
	form := doc.Find(s.UserForm).First()
	if form.Length() == 0 {
		e.logger.Debug("extract: user form container not found", "selector", s.UserForm)
	}

	labels := form.Find(s.UserFormLabels)
	inputs := form.Find(s.UserFormInputs)
	dropdown := form.Find(s.UserFormDropdown).First()

	data := make(map[string]string, 3)
	data[orNoData(textOf(labels.Eq(0)))] = orNoData(inputVal(inputs.Eq(0)))
	data[orNoData(textOf(labels.Eq(1)))] = orNoData(inputVal(inputs.Eq(1)))
	data[orNoData(textOf(labels.Eq(2)))] = orNoData(inputVal(dropdown))
	return data
}

// skills partitions the skill tags under scope into relevant and removed
// lists. Both share the scope label (colon-stripped) plus a suffix; both
// preserve document order; relevant = all minus removed by text equality.
func (e *Extractor) skills(scope *goquery.Selection, scopeSel string) map[string][]string {
	label := textOf(scope.Find(scopeSel + " .label").First())
	if label == "" {
		label = NoData
	}
	label = strings.TrimSuffix(label, ":")

	all := texts(scope.Find(scopeSel + " .value .skill"))
	removed := texts(scope.Find(scopeSel + " .value .skill.deleted"))

	removedSet := make(map[string]struct{}, len(removed))
	for _, r := range removed {
		removedSet[r] = struct{}{}
	}
	relevant := make([]string, 0, len(all))
	for _, sk := range all {
		if _, ok := removedSet[sk]; !ok {
			relevant = append(relevant, sk)
		}
	}

	return map[string][]string{
		label + e.schema.RelevantSuffix: relevant,
		label + e.schema.RemovedSuffix:  removed,
	}
}

// course builds the label→value union for one course block. The
// education-number-error marker force-sets the course number field to the
// "not specified" sentinel, overriding whatever the info-item walk found.
func (e *Extractor) course(info *goquery.Selection) Course {
	s := e.schema
	c := make(Course)

	info.Find(s.InfoItem).Each(func(_ int, item *goquery.Selection) {
		label := textOf(item.Find(".label").First())
		if label == "" {
			label = NoData
		}
		label = strings.TrimSuffix(label, ":")
		c[label] = orNoData(textOf(item.Find(".value").First()))
	})

	if info.Find(s.EduNumberError).Length() > 0 {
		c[s.CourseNumberLabel] = NotSpecified
	}

	label, value := e.rangeData(info.Find(s.Range).First(), "")
	c[label] = value

	for k, v := range e.skills(info, s.SkillScope) {
		c[k] = v
	}
	return c
}

// rangeData reads one rating block: explicit override label, else the
// block's own label element (colon-stripped), else the sentinel; the value
// comes from the widget's hidden mirror input.
func (e *Extractor) rangeData(rng *goquery.Selection, override string) (string, string) {
	label := override
	if label == "" {
		label = textOf(rng.Find("label").First())
	}
	if label == "" {
		label = NoData
	}
	label = strings.TrimSuffix(label, ":")

	value := orNoData(inputVal(rng.Find("input[type='hidden']").First()))
	return label, value
}

// tokenList collects non-empty token texts from a supplementary skill box.
func (e *Extractor) tokenList(doc *goquery.Document, containerSel string) []string {
	container := doc.Find(containerSel).First()
	if container.Length() == 0 {
		e.logger.Debug("extract: token container not found", "selector", containerSel)
		return []string{}
	}

	out := []string{}
	container.Find(".token").Each(func(_ int, tok *goquery.Selection) {
		if txt := textOf(tok.Find("span").First()); txt != "" {
			out = append(out, txt)
		}
	})
	return out
}

// ratings reads the additional rating blocks with positional custom labels.
// A missing container leaves the field structurally absent.
func (e *Extractor) ratings(doc *goquery.Document) map[string]string {
	s := e.schema
	container := doc.Find(s.AddRange).First()
	if container.Length() == 0 {
		e.logger.Debug("extract: additional ratings block not found", "selector", s.AddRange)
		return nil
	}

	out := make(map[string]string)
	container.Find(s.Range).Each(func(i int, rng *goquery.Selection) {
		custom := fmt.Sprintf(s.RangeLabelFormat, i+1)
		if i < len(s.RatingLabels) {
			custom = s.RatingLabels[i]
		}
		label, value := e.rangeData(rng, custom)
		out[label] = value
	})
	return out
}

// timing computes the elapsed-session decomposition. Absent start value:
// omitted silently. Unparsable start value: omitted with a diagnostic.
func (e *Extractor) timing(doc *goquery.Document) *Timing {
	raw := inputVal(doc.Find(e.schema.Timer).First())
	if raw == "" {
		e.logger.Debug("extract: start time not found")
		return nil
	}

	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		e.logger.Warn("extract: invalid start time", "value", raw)
		return nil
	}

	start := time.UnixMilli(int64(math.Round(secs * 1000)))
	end := e.now()
	elapsed := end.Sub(start).Milliseconds()
	h, m, s, ms := SplitElapsed(elapsed)

	return &Timing{
		Hours:          h,
		Minutes:        m,
		Seconds:        s,
		Milliseconds:   ms,
		StartTimestamp: epochSeconds(start, 5),
		EndTimestamp:   epochSeconds(end, 5),
		ElapsedMS:      elapsed,
		ElapsedS:       strconv.FormatFloat(float64(elapsed)/1000, 'f', 3, 64),
	}
}

func epochSeconds(t time.Time, decimals int) string {
	return strconv.FormatFloat(float64(t.UnixMilli())/1000, 'f', decimals, 64)
}

func textOf(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}

func inputVal(sel *goquery.Selection) string {
	v, _ := sel.Attr("value")
	return strings.TrimSpace(v)
}

func orNoData(s string) string {
	if s == "" {
		return NoData
	}
	return s
}

func texts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out
}
