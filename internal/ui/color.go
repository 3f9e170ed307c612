package ui

// subjectColors maps a subject identifier to its card background color.
var subjectColors = map[string]string{
	"science":   "#E5D0FF",
	"maths":     "#FFDA6E",
	"language":  "#BDE7FF",
	"coding":    "#FFC8E4",
	"history":   "#FFECC8",
	"economics": "#C8FFDF",
}

// SubjectColor returns the display color for a subject. Unknown subjects
// report ok == false; callers pick their own fallback.
func SubjectColor(subject string) (string, bool) {
	color, ok := subjectColors[subject]
	return color, ok
}

// SubjectColorOr is SubjectColor with a fallback, for templates.
func SubjectColorOr(subject, fallback string) string {
	if color, ok := subjectColors[subject]; ok {
		return color
	}
	return fallback
}

// Subjects returns the known subject identifiers.
func Subjects() []string {
	return []string{"maths", "language", "science", "history", "coding", "economics"}
}
