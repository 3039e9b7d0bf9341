// Package source reconciles each tested source location between the
// public shared repository namespace and the internal mirror namespace,
// and derives the per-project metadata the report presents.
package source

import (
	"regexp"
	"sort"
	"strings"
)

// mirrorSuffix distinguishes a mirror keyword from its public
// counterpart: the mirror keyword is the public keyword plus this marker.
const mirrorSuffix = "m"

var (
	publicKeyword = regexp.MustCompile(`.x$`)
	mirrorKeyword = regexp.MustCompile(`.xm$`)
	anyKeyword    = regexp.MustCompile(`.x(|m)$`)
	sharedURL     = regexp.MustCompile(`^https://code.metoffice`)
	mirrorURL     = regexp.MustCompile(`^(svn:|https://)`)
)

// KeywordTable maps repository keywords to URLs for one run. Only
// keywords following the site convention (public keyword with a shared
// URL, mirror keyword with a mirror URL) take part in translation.
type KeywordTable map[string]string

// FilterKeywords reduces a raw keyword listing to the entries that follow
// the public/mirror naming convention.
func FilterKeywords(raw map[string]string) KeywordTable {
	table := KeywordTable{}
	for keyword, url := range raw {
		if (publicKeyword.MatchString(keyword) && sharedURL.MatchString(url)) ||
			(mirrorKeyword.MatchString(keyword) && mirrorURL.MatchString(url)) {
			table[keyword] = url
		}
	}
	return table
}

// sorted returns the keywords longest first so that substitution always
// prefers the most specific match, with a lexical tie-break for
// determinism.
func (t KeywordTable) sorted() []string {
	keywords := make([]string, 0, len(t))
	for keyword := range t {
		keywords = append(keywords, keyword)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if len(keywords[i]) != len(keywords[j]) {
			return len(keywords[i]) > len(keywords[j])
		}
		return keywords[i] < keywords[j]
	})
	return keywords
}

// ToMirror translates a public URL or keyword into the internal mirror
// namespace. Unresolvable input is returned unchanged; validity is
// decided later by an existence check, not here.
func (t KeywordTable) ToMirror(url string) string {
	if url == "" {
		return ""
	}
	for _, keyword := range t.sorted() {
		keywordURL := t[keyword]
		mirror, haveMirror := t[keyword+mirrorSuffix]
		if !haveMirror {
			continue
		}
		if keywordURL != "" && strings.Contains(url, keywordURL) {
			return strings.Replace(url, keywordURL, mirror, 1)
		}
		if strings.Contains(url, keyword) {
			return strings.Replace(url, keyword, keyword+mirrorSuffix, 1)
		}
	}
	return url
}

// ToPublic translates a mirror URL or keyword back into the public shared
// namespace. The compact keyword grammar is understood: a `_tr` suffix
// expands to /trunk and `_br` to /branches.
func (t KeywordTable) ToPublic(url string) string {
	if url == "" {
		return ""
	}
	for _, keyword := range t.sorted() {
		if !anyKeyword.MatchString(keyword) {
			continue
		}
		keywordURL := t[keyword]
		shared := strings.TrimSuffix(keyword, mirrorSuffix)
		sharedTarget, haveShared := t[shared]
		if !haveShared {
			continue
		}
		if keywordURL != "" && strings.Contains(url, keywordURL) {
			return strings.Replace(url, keywordURL, sharedTarget, 1)
		}
		// A keyword reference is only a match when the next character is
		// not the mirror marker, so `um.x` never claims `um.xm` input.
		if notMirrorRef := regexp.MustCompile(`fcm:` + regexp.QuoteMeta(keyword) + `[^m]`); notMirrorRef.MatchString(url) {
			switch {
			case strings.HasPrefix(url, "fcm:"+keyword+"_tr"):
				return strings.Replace(url, "fcm:"+keyword+"_tr", sharedTarget+"/trunk", 1)
			case strings.HasPrefix(url, "fcm:"+keyword+"_br"):
				return strings.Replace(url, "fcm:"+keyword+"_br", sharedTarget+"/branches", 1)
			default:
				return strings.Replace(url, keyword, shared, 1)
			}
		}
	}
	return url
}

// ToKeyword renders a URL in its human-readable keyword form, or returns
// the empty string when no keyword covers it.
func (t KeywordTable) ToKeyword(url string) string {
	if url == "" {
		return ""
	}
	for _, keyword := range t.sorted() {
		keywordURL := t[keyword]
		if keywordURL != "" && strings.Contains(url, keywordURL) {
			result := strings.Replace(url, keywordURL, "fcm:"+keyword, 1)
			result = strings.Replace(result, "/trunk", "_tr", 1)
			result = strings.Replace(result, "/branches", "_br", 1)
			return result
		}
		if strings.Contains(url, "fcm:"+keyword) {
			return url
		}
	}
	return ""
}

var escapedSVN = regexp.MustCompile(`!svn://`)

// EscapeSVN protects svn:// URLs from the wiki's link auto-conversion.
func EscapeSVN(url string) string {
	if escapedSVN.MatchString(url) {
		return url
	}
	return strings.ReplaceAll(url, "svn://", "!svn://")
}

// URLToTracLink rewrites a shared-repository URL into its browsable form,
// or returns the empty string when the URL is not a repository URL.
func URLToTracLink(url string) string {
	if !strings.Contains(url, "/svn/") {
		return ""
	}
	link := strings.ReplaceAll(url, "svn", "trac")
	elements := strings.Split(link, "/")
	for i, element := range elements {
		if element == "trac" {
			rest := append([]string{"browser"}, elements[i+2:]...)
			elements = append(elements[:i+2:i+2], rest...)
			break
		}
	}
	link = strings.Join(elements, "/")
	return strings.ReplaceAll(link, "@", "?rev=")
}
