package types

import (
	"fmt"
	"regexp"
)

// Subject is the individual under investigation. The ID doubles as the
// transcription job name and the vector index namespace, so it has to
// stay a plain token (see ValidateSubjectID).
type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WantedEntry is one record from the public wanted-persons feed, already
// normalized: aliases from whichever field the feed used are merged into
// Aliases.
type WantedEntry struct {
	Title       string   `json:"title"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// InvestigationResult is the terminal output of one pipeline run.
type InvestigationResult struct {
	Answer        string        `json:"answer"`
	WantedMatches []WantedEntry `json:"wanted_matches"`
}

// Collection names accept only letters, digits and underscores, which
// is stricter than transcription job names. The intersection wins: an
// id that passes here is legal for both.
var subjectIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateSubjectID rejects identifiers that cannot serve as both a
// transcription job name and an index collection name.
func ValidateSubjectID(id string) error {
	if !subjectIDPattern.MatchString(id) {
		return fmt.Errorf("invalid subject id %q: must match %s", id, subjectIDPattern.String())
	}
	return nil
}
