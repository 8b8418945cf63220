package analyzer

import (
	"bufio"
	"io"
	"path/filepath"
	"regexp"
	"strings"
)

// Counts are the per-file line tallies. Every line is exactly one of code,
// comment or blank; Logs counts lines matching an insight and overlaps the
// others.
type Counts struct {
	Code    int
	Comment int
	Blank   int
	Logs    int
}

// Total is code + comment + blank.
func (c Counts) Total() int {
	return c.Code + c.Comment + c.Blank
}

// Add returns the element-wise sum.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Code:    c.Code + o.Code,
		Comment: c.Comment + o.Comment,
		Blank:   c.Blank + o.Blank,
		Logs:    c.Logs + o.Logs,
	}
}

// Insight is a named set of patterns; a line counts once if any pattern
// matches it.
type Insight struct {
	Name     string
	Patterns []*regexp.Regexp
}

// Match reports whether any pattern matches line.
func (in Insight) Match(line string) bool {
	for _, re := range in.Patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// LogInsight matches logging calls: Python's logger.LEVEL constants and
// Java's LOGGER.level methods.
var LogInsight = Insight{
	Name: "Logs",
	Patterns: []*regexp.Regexp{
		regexp.MustCompile(`logger\.[A-Z]+`),
		regexp.MustCompile(`LOGGER\.[a-z]+`),
	},
}

// syntax describes the comment forms of a language.
type syntax struct {
	line       []string
	blockStart string
	blockEnd   string
	docstrings bool
}

var (
	hashSyntax  = syntax{line: []string{"#"}}
	cSyntax     = syntax{line: []string{"//"}, blockStart: "/*", blockEnd: "*/"}
	pySyntax    = syntax{line: []string{"#"}, docstrings: true}
	sqlSyntax   = syntax{line: []string{"--"}, blockStart: "/*", blockEnd: "*/"}
	xmlSyntax   = syntax{blockStart: "<!--", blockEnd: "-->"}
	luaSyntax   = syntax{line: []string{"--"}}
	languageMap = map[string]syntax{
		".py":    pySyntax,
		".java":  cSyntax,
		".go":    cSyntax,
		".js":    cSyntax,
		".jsx":   cSyntax,
		".ts":    cSyntax,
		".tsx":   cSyntax,
		".c":     cSyntax,
		".h":     cSyntax,
		".cc":    cSyntax,
		".cpp":   cSyntax,
		".hpp":   cSyntax,
		".cs":    cSyntax,
		".rs":    cSyntax,
		".kt":    cSyntax,
		".scala": cSyntax,
		".swift": cSyntax,
		".css":   {blockStart: "/*", blockEnd: "*/"},
		".sh":    hashSyntax,
		".bash":  hashSyntax,
		".rb":    hashSyntax,
		".pl":    hashSyntax,
		".r":     hashSyntax,
		".yaml":  hashSyntax,
		".yml":   hashSyntax,
		".toml":  hashSyntax,
		".sql":   sqlSyntax,
		".lua":   luaSyntax,
		".html":  xmlSyntax,
		".xml":   xmlSyntax,
	}
)

// Supported reports whether files with this name are counted.
func Supported(name string) bool {
	_, ok := languageMap[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Count tallies the lines of r, interpreted by the comment syntax of name's
// extension. Unsupported extensions count every non-blank line as code.
func Count(name string, r io.Reader, insights ...Insight) (Counts, error) {
	syn := languageMap[strings.ToLower(filepath.Ext(name))]

	var c Counts
	var blockEnd string // non-empty while inside a block comment or docstring

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		raw := sc.Text()
		for _, in := range insights {
			if in.Match(raw) {
				c.Logs++
				break
			}
		}

		line := strings.TrimSpace(raw)
		if line == "" {
			c.Blank++
			continue
		}

		if blockEnd != "" {
			c.Comment++
			if strings.Contains(line, blockEnd) {
				blockEnd = ""
			}
			continue
		}

		if hasAnyPrefix(line, syn.line) {
			c.Comment++
			continue
		}

		if syn.blockStart != "" && strings.HasPrefix(line, syn.blockStart) {
			c.Comment++
			if !strings.Contains(line[len(syn.blockStart):], syn.blockEnd) {
				blockEnd = syn.blockEnd
			}
			continue
		}

		if syn.docstrings {
			if delim, ok := docstringDelim(line); ok {
				c.Comment++
				if strings.Count(line, delim) == 1 {
					blockEnd = delim
				}
				continue
			}
		}

		c.Code++
	}
	return c, sc.Err()
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func docstringDelim(line string) (string, bool) {
	for _, prefix := range []string{"", "r", "u", "b", "f", "R", "U", "B", "F"} {
		for _, d := range []string{`"""`, `'''`} {
			if strings.HasPrefix(line, prefix+d) {
				return d, true
			}
		}
	}
	return "", false
}
