package prose

import (
	"strings"

	"golang.org/x/text/cases"
)

// irregular maps inflected forms that no suffix rule recovers.
var irregular = map[string]string{
	"am": "be", "is": "be", "are": "be", "was": "be", "were": "be", "been": "be", "being": "be",
	"has": "have", "had": "have", "having": "have",
	"does": "do", "did": "do", "done": "do", "doing": "do",
	"goes": "go", "went": "go", "gone": "go",
	"says": "say", "said": "say",
	"made": "make", "took": "take", "taken": "take",
	"gave": "give", "given": "give", "got": "get", "gotten": "get",
	"came": "come", "saw": "see", "seen": "see",
	"knew": "know", "known": "know", "found": "find", "left": "leave",
	"brought": "bring", "began": "begin", "begun": "begin",
	"fell": "fall", "fallen": "fall", "rose": "rise", "risen": "rise",
	"held": "hold", "kept": "keep", "ran": "run", "built": "build",
	"sent": "send", "spent": "spend", "lost": "lose", "met": "meet",
	"paid": "pay", "led": "lead", "felt": "feel", "told": "tell",
	"thought": "think", "became": "become", "fled": "flee",
	"died": "die", "lied": "lie", "tied": "tie",
	"making": "make", "taking": "take", "coming": "come", "becoming": "become",
	"hit": "hit", "cut": "cut", "put": "put", "set": "set", "hurt": "hurt",
	"children": "child", "people": "person", "men": "man", "women": "woman",
	"feet": "foot", "teeth": "tooth", "mice": "mouse", "data": "data",
	"crises": "crisis", "analyses": "analysis", "bases": "basis",
	"better": "good", "best": "good", "worse": "bad", "worst": "bad",
	"less": "little", "least": "little", "further": "far", "farther": "far",
}

// eEndings are stem endings that lost a final "e" before -ed or -ing.
var eEndings = []string{"ang", "c", "v", "iz", "us", "is", "id", "ud", "bl", "ur", "os"}

// lemma returns the dictionary form of a tagged token, or "" when the token
// is inflected and no rule recovers its base form. Proper nouns keep their
// surface.
func lemma(fold cases.Caser, text, tag string) string {
	switch tag {
	case "NNP", "NNPS":
		return text
	}
	w := fold.String(text)
	switch tag {
	case "NNS", "VBZ":
		if base, ok := irregular[w]; ok {
			return base
		}
		return plural(w)
	case "VBD", "VBN":
		if base, ok := irregular[w]; ok {
			return base
		}
		return stripSuffix(w, "ed", "ied")
	case "VBG":
		if base, ok := irregular[w]; ok {
			return base
		}
		return stripSuffix(w, "ing", "")
	case "JJR", "RBR":
		if base, ok := irregular[w]; ok {
			return base
		}
		return comparative(w, "er", "ier")
	case "JJS", "RBS":
		if base, ok := irregular[w]; ok {
			return base
		}
		return comparative(w, "est", "iest")
	default:
		return w
	}
}

func plural(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "sses"), strings.HasSuffix(w, "xes"), strings.HasSuffix(w, "zes"),
		strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ss"), strings.HasSuffix(w, "us"):
		return w
	case len(w) > 2 && strings.HasSuffix(w, "s"):
		return w[:len(w)-1]
	default:
		return ""
	}
}

// stripSuffix undoes -ed or -ing, restoring a doubled consonant or a dropped
// "e". ySuffix, when set, is rewritten to "y".
func stripSuffix(w, suffix, ySuffix string) string {
	if ySuffix != "" && len(w) > len(ySuffix)+1 && strings.HasSuffix(w, ySuffix) {
		return w[:len(w)-len(ySuffix)] + "y"
	}
	if suffix == "ed" && strings.HasSuffix(w, "eed") {
		return w[:len(w)-1]
	}
	if !strings.HasSuffix(w, suffix) {
		return ""
	}
	stem := w[:len(w)-len(suffix)]
	if len(stem) < 2 {
		return ""
	}
	if doubled(stem) {
		return stem[:len(stem)-1]
	}
	if needsE(stem) {
		return stem + "e"
	}
	return stem
}

func comparative(w, suffix, ySuffix string) string {
	if len(w) > len(ySuffix)+1 && strings.HasSuffix(w, ySuffix) {
		return w[:len(w)-len(ySuffix)] + "y"
	}
	if !strings.HasSuffix(w, suffix) {
		return ""
	}
	stem := w[:len(w)-len(suffix)]
	if len(stem) >= 3 && doubled(stem) {
		return stem[:len(stem)-1]
	}
	// larger, wider: the dropped "e" cannot be told apart from a bare stem.
	return ""
}

func doubled(stem string) bool {
	n := len(stem)
	if n < 3 {
		return false
	}
	a, b := stem[n-2], stem[n-1]
	return a == b && !isVowel(b) && !strings.ContainsRune("lsz", rune(b))
}

func needsE(stem string) bool {
	n := len(stem)
	// located, debated; but treated, floated.
	if n >= 3 && strings.HasSuffix(stem, "at") && !isVowel(stem[n-3]) {
		return true
	}
	for _, end := range eEndings {
		if strings.HasSuffix(stem, end) {
			return true
		}
	}
	return false
}

func isVowel(b byte) bool {
	return strings.IndexByte("aeiou", b) >= 0
}
