package models

// Strategy identifies the resolver stage that produced a match. Values are
// ordered by priority; NoMatch is the zero value.
type Strategy int

const (
	NoMatch Strategy = iota
	FilenameDuplicateIndex
	FilenameExact
	FilenameStrippedIndex
	FilenamePrefix
	TitleExact
	TitleNormalized
	TitleDuplicateIndex
	BaseName
	Prefix
	Substring
	Timestamp
)

var strategyNames = map[Strategy]string{
	NoMatch:                "no_match",
	FilenameDuplicateIndex: "filename_duplicate_index",
	FilenameExact:          "filename_exact",
	FilenameStrippedIndex:  "filename_stripped_index",
	FilenamePrefix:         "filename_prefix",
	TitleExact:             "title_exact",
	TitleNormalized:        "title_normalized",
	TitleDuplicateIndex:    "title_duplicate_index",
	BaseName:               "base_name",
	Prefix:                 "prefix",
	Substring:              "substring",
	Timestamp:              "timestamp",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// Stage returns the cascade stage number (0-7) the strategy belongs to, or -1
// for NoMatch.
func (s Strategy) Stage() int {
	switch s {
	case FilenameDuplicateIndex, FilenameExact, FilenameStrippedIndex, FilenamePrefix:
		return 0
	case TitleExact:
		return 1
	case TitleNormalized:
		return 2
	case TitleDuplicateIndex:
		return 3
	case BaseName:
		return 4
	case Prefix:
		return 5
	case Substring:
		return 6
	case Timestamp:
		return 7
	default:
		return -1
	}
}

type MatchResult struct {
	Path     string
	Strategy Strategy
	// LastStage is the last cascade stage evaluated; for a NoMatch it tells
	// how far the resolver got.
	LastStage int
}

func (m MatchResult) Matched() bool {
	return m.Strategy != NoMatch && m.Path != ""
}
