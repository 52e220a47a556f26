package model

import "strings"

// subjectCodes maps the short subject codes found in older banks to their
// display names.
var subjectCodes = map[string]string{
	"phy":   "Physics",
	"chem":  "Chemistry",
	"bio":   "Biology",
	"math":  "Mathematics",
	"maths": "Mathematics",
	"eng":   "English",
	"gk":    "General Knowledge",
	"ca":    "Current Affairs",
	"reas":  "Reasoning",
	"quant": "Quantitative Aptitude",
	"comp":  "Computer Science",
	"hist":  "History",
	"geo":   "Geography",
	"pol":   "Polity",
	"eco":   "Economics",
}

// LookupSubjectCode returns the display name of a known short code.
func LookupSubjectCode(code string) (string, bool) {
	name, ok := subjectCodes[strings.ToLower(strings.TrimSpace(code))]
	return name, ok
}
