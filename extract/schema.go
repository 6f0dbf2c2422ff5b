package extract

// Sentinel defaults substituted when a labeled field cannot be located.
// The record's shape stays stable across inputs: absence becomes one of
// these strings, never a missing key.
const (
	NoData       = "no data"
	NotSpecified = "not specified"
)

// Schema holds every selector path and label string the extractor walks.
// The three historical script variants differed only here, so the paths
// are data: one extractor, parameterized, with the canonical markup as
// default. All selectors are CSS.
type Schema struct {
	// Flat fields.
	UserID      string `yaml:"user_id"`
	UserMessage string `yaml:"user_message"`
	SessionID   string `yaml:"session_id"`
	Feedback    string `yaml:"feedback"`
	Timer       string `yaml:"timer"`

	// User identity form.
	UserForm         string `yaml:"user_form"`
	UserFormLabels   string `yaml:"user_form_labels"`
	UserFormInputs   string `yaml:"user_form_inputs"`
	UserFormDropdown string `yaml:"user_form_dropdown"`

	// Bot response walk.
	BotMessage     string `yaml:"bot_message"`
	SubjectInfo    string `yaml:"subject_info"`
	SkillScope     string `yaml:"skill_scope"`
	EduGroup       string `yaml:"edu_group"`
	CourseInfo     string `yaml:"course_info"`
	InfoItem       string `yaml:"info_item"`
	Range          string `yaml:"range"`
	EduNumberError string `yaml:"edu_number_error"`

	// Supplementary token lists and ratings.
	VacancySkills string `yaml:"vacancy_skills"`
	SubjectSkills string `yaml:"subject_skills"`
	AddRange      string `yaml:"add_range"`

	// Labels.
	RatingLabels      []string `yaml:"rating_labels"`      // positional custom labels for the rating blocks
	RangeLabelFormat  string   `yaml:"range_label_format"` // fallback for extra rating blocks, 1-based
	GroupLabelFormat  string   `yaml:"group_label_format"` // fallback for unlabeled groups, 1-based
	CourseNumberLabel string   `yaml:"course_number_label"`
	RelevantSuffix    string   `yaml:"relevant_suffix"`
	RemovedSuffix     string   `yaml:"removed_suffix"`
}

// DefaultSchema returns the canonical schema.
func DefaultSchema() Schema {
	return Schema{
		UserID:      ".block.user-id input",
		UserMessage: ".chatbot-container .message.user button > span.chatbot.prose",
		SessionID:   ".chatbot-id input",
		Feedback:    ".block.feedback textarea",
		Timer:       "div.chatbot-timer input",

		UserForm:         ".user-container .form",
		UserFormLabels:   "span[data-testid='block-info']",
		UserFormInputs:   ".user-info input",
		UserFormDropdown: ".dropdown-user input",

		BotMessage:     ".chatbot-container .message.bot button span.chatbot",
		SubjectInfo:    ".subject-info",
		SkillScope:     ".info-skills",
		EduGroup:       ".edu-group",
		CourseInfo:     ".info",
		InfoItem:       ".info-item",
		Range:          ".range",
		EduNumberError: ".info-number-education-error",

		VacancySkills: ".dropdown-add-vacancy-skills",
		SubjectSkills: ".dropdown-add-subjects-skills",
		AddRange:      ".block.add-range",

		RatingLabels:      []string{"Usefulness", "Demand", "Convenience"},
		RangeLabelFormat:  "Range %d",
		GroupLabelFormat:  "Group %d",
		CourseNumberLabel: "Course number",
		RelevantSuffix:    " (relevant)",
		RemovedSuffix:     " (removed)",
	}
}

// merge overlays non-zero fields of o onto s. Used by the config layer so
// a YAML file only needs to name the selectors it changes.
func (s Schema) merge(o Schema) Schema {
	merged := s
	overlay := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	overlay(&merged.UserID, o.UserID)
	overlay(&merged.UserMessage, o.UserMessage)
	overlay(&merged.SessionID, o.SessionID)
	overlay(&merged.Feedback, o.Feedback)
	overlay(&merged.Timer, o.Timer)
	overlay(&merged.UserForm, o.UserForm)
	overlay(&merged.UserFormLabels, o.UserFormLabels)
	overlay(&merged.UserFormInputs, o.UserFormInputs)
	overlay(&merged.UserFormDropdown, o.UserFormDropdown)
	overlay(&merged.BotMessage, o.BotMessage)
	overlay(&merged.SubjectInfo, o.SubjectInfo)
	overlay(&merged.SkillScope, o.SkillScope)
	overlay(&merged.EduGroup, o.EduGroup)
	overlay(&merged.CourseInfo, o.CourseInfo)
	overlay(&merged.InfoItem, o.InfoItem)
	overlay(&merged.Range, o.Range)
	overlay(&merged.EduNumberError, o.EduNumberError)
	overlay(&merged.VacancySkills, o.VacancySkills)
	overlay(&merged.SubjectSkills, o.SubjectSkills)
	overlay(&merged.AddRange, o.AddRange)
	overlay(&merged.RangeLabelFormat, o.RangeLabelFormat)
	overlay(&merged.GroupLabelFormat, o.GroupLabelFormat)
	overlay(&merged.CourseNumberLabel, o.CourseNumberLabel)
	overlay(&merged.RelevantSuffix, o.RelevantSuffix)
	overlay(&merged.RemovedSuffix, o.RemovedSuffix)
	if len(o.RatingLabels) > 0 {
		merged.RatingLabels = o.RatingLabels
	}
	return merged
}

// Merged returns DefaultSchema with non-zero fields of o applied on top.
func Merged(o Schema) Schema {
	return DefaultSchema().merge(o)
}
