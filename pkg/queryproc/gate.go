package queryproc

import "strings"

// skipPatterns are greetings, backchannels, and acknowledgments that
// never benefit from memory retrieval.
var skipPatterns = map[string]struct{}{
	"hello": {}, "hi": {}, "hey": {}, "howdy": {}, "sup": {}, "yo": {},
	"bye": {}, "goodbye": {}, "see you": {}, "goodnight": {}, "good night": {},
	"yeah": {}, "yes": {}, "yep": {}, "yup": {}, "no": {}, "nah": {}, "nope": {},
	"okay": {}, "ok": {}, "alright": {}, "sure": {}, "right": {},
	"mm": {}, "hmm": {}, "mmm": {}, "mhm": {}, "mm-hmm": {}, "uh-huh": {}, "uh huh": {},
	"ah": {}, "oh": {}, "huh": {}, "uh": {}, "um": {},
	"cool": {}, "nice": {}, "wow": {},
	"thanks": {}, "thank you": {}, "ty": {},
}

// ShouldRetrieve is the adaptive retrieval gate. It returns false for
// trivially short messages and for utterances made up entirely of skip
// patterns, saving a full retrieval round trip on a large share of
// conversational turns.
func ShouldRetrieve(query string) bool {
	cleaned := strings.TrimRight(strings.TrimSpace(strings.ToLower(query)), ".,!?")

	if len(cleaned) < 3 {
		return false
	}

	if _, ok := skipPatterns[cleaned]; ok {
		return false
	}

	words := strings.Fields(cleaned)
	if len(words) <= 3 {
		allSkip := true
		for _, w := range words {
			if _, ok := skipPatterns[w]; !ok {
				allSkip = false
				break
			}
		}
		if allSkip {
			return false
		}
	}

	return true
}
