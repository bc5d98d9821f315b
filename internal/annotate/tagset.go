package annotate

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// TagInfo describes one part-of-speech tag.
type TagInfo struct {
	// Lpos is appended to the lemma to form the third vertical column.
	Lpos        string `yaml:"lpos"`
	Description string `yaml:"description,omitempty"`
}

// Tagset maps tags to their lemma-position suffix.
type Tagset struct {
	tags map[string]TagInfo
}

type tagsetFile struct {
	Tags map[string]TagInfo `yaml:"tags"`
}

// NewTagset builds a tagset from tag definitions. The map is copied.
func NewTagset(tags map[string]TagInfo) Tagset {
	cp := make(map[string]TagInfo, len(tags))
	for tag, info := range tags {
		cp[tag] = info
	}
	return Tagset{tags: cp}
}

// ParseTagset decodes a YAML document of the form
//
//	tags:
//	  NNS: {lpos: "-n", description: "noun, plural"}
func ParseTagset(data []byte) (Tagset, error) {
	var f tagsetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Tagset{}, fmt.Errorf("decode tagset: %w", err)
	}
	if len(f.Tags) == 0 {
		return Tagset{}, fmt.Errorf("tagset defines no tags")
	}
	for tag := range f.Tags {
		if strings.TrimSpace(tag) == "" {
			return Tagset{}, fmt.Errorf("tagset contains an empty tag")
		}
	}
	return NewTagset(f.Tags), nil
}

// LoadTagset reads a YAML tagset file. An empty path yields DefaultTagset.
func LoadTagset(path string) (Tagset, error) {
	if path == "" {
		return DefaultTagset(), nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied tagset.
	if err != nil {
		return Tagset{}, fmt.Errorf("read tagset: %w", err)
	}
	return ParseTagset(data)
}

// Suffix returns the lpos for tag; ok is false for unknown tags.
func (t Tagset) Suffix(tag string) (string, bool) {
	info, ok := t.tags[tag]
	return info.Lpos, ok
}

// Has reports whether tag is defined.
func (t Tagset) Has(tag string) bool {
	_, ok := t.tags[tag]
	return ok
}

// Tags lists the defined tags in ascending order.
func (t Tagset) Tags() []string {
	out := make([]string, 0, len(t.tags))
	for tag := range t.tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Len is the number of defined tags.
func (t Tagset) Len() int { return len(t.tags) }

// DefaultTagset is the Penn Treebank tagset with lempos suffixes.
func DefaultTagset() Tagset {
	return NewTagset(map[string]TagInfo{
		"CC":   {Lpos: "-c", Description: "coordinating conjunction"},
		"CD":   {Lpos: "-m", Description: "cardinal number"},
		"DT":   {Lpos: "-x", Description: "determiner"},
		"EX":   {Lpos: "-x", Description: "existential there"},
		"FW":   {Lpos: "-x", Description: "foreign word"},
		"IN":   {Lpos: "-i", Description: "preposition or subordinating conjunction"},
		"JJ":   {Lpos: "-j", Description: "adjective"},
		"JJR":  {Lpos: "-j", Description: "adjective, comparative"},
		"JJS":  {Lpos: "-j", Description: "adjective, superlative"},
		"LS":   {Lpos: "-x", Description: "list item marker"},
		"MD":   {Lpos: "-v", Description: "modal"},
		"NN":   {Lpos: "-n", Description: "noun, singular or mass"},
		"NNS":  {Lpos: "-n", Description: "noun, plural"},
		"NNP":  {Lpos: "-n", Description: "proper noun, singular"},
		"NNPS": {Lpos: "-n", Description: "proper noun, plural"},
		"PDT":  {Lpos: "-x", Description: "predeterminer"},
		"POS":  {Lpos: "-x", Description: "possessive ending"},
		"PRP":  {Lpos: "-d", Description: "personal pronoun"},
		"PRP$": {Lpos: "-d", Description: "possessive pronoun"},
		"RB":   {Lpos: "-a", Description: "adverb"},
		"RBR":  {Lpos: "-a", Description: "adverb, comparative"},
		"RBS":  {Lpos: "-a", Description: "adverb, superlative"},
		"RP":   {Lpos: "-x", Description: "particle"},
		"SYM":  {Lpos: "-x", Description: "symbol"},
		"TO":   {Lpos: "-x", Description: "to"},
		"UH":   {Lpos: "-x", Description: "interjection"},
		"VB":   {Lpos: "-v", Description: "verb, base form"},
		"VBD":  {Lpos: "-v", Description: "verb, past tense"},
		"VBG":  {Lpos: "-v", Description: "verb, gerund or present participle"},
		"VBN":  {Lpos: "-v", Description: "verb, past participle"},
		"VBP":  {Lpos: "-v", Description: "verb, non-3rd person singular present"},
		"VBZ":  {Lpos: "-v", Description: "verb, 3rd person singular present"},
		"WDT":  {Lpos: "-x", Description: "wh-determiner"},
		"WP":   {Lpos: "-d", Description: "wh-pronoun"},
		"WP$":  {Lpos: "-d", Description: "possessive wh-pronoun"},
		"WRB":  {Lpos: "-a", Description: "wh-adverb"},
		".":    {Lpos: "-x", Description: "sentence-final punctuation"},
		",":    {Lpos: "-x", Description: "comma"},
		":":    {Lpos: "-x", Description: "colon or semicolon"},
		"(":    {Lpos: "-x", Description: "opening bracket"},
		")":    {Lpos: "-x", Description: "closing bracket"},
		"``":   {Lpos: "-x", Description: "opening quotation mark"},
		"''":   {Lpos: "-x", Description: "closing quotation mark"},
		"#":    {Lpos: "-x", Description: "pound sign"},
		"$":    {Lpos: "-x", Description: "dollar sign"},
	})
}
