// Package locale picks the customer-facing language of an order from several
// weakly ordered signals.
package locale

import (
	"strings"

	"golang.org/x/text/language"
)

// Source yields a locale candidate, or "" when it has nothing to offer.
type Source func(Signals) string

// Signals are the raw inputs available at finalize time.
type Signals struct {
	Body           string
	RefererPath    string
	AcceptLanguage string
}

type Resolver struct {
	supported     map[string]struct{}
	defaultLocale string
	matcher       language.Matcher
	tags          []language.Tag
	chain         []Source
}

// NewResolver builds a resolver over the supported locales. The chain order
// is explicit body value, referer path segment, Accept-Language header.
func NewResolver(supported []string, defaultLocale string) *Resolver {
	r := &Resolver{
		supported:     make(map[string]struct{}, len(supported)),
		defaultLocale: normalize(defaultLocale),
	}
	for _, code := range supported {
		code = normalize(code)
		if code == "" {
			continue
		}
		if _, dup := r.supported[code]; dup {
			continue
		}
		r.supported[code] = struct{}{}
		r.tags = append(r.tags, language.Make(code))
	}
	if r.defaultLocale == "" {
		r.defaultLocale = "en"
	}
	r.matcher = language.NewMatcher(r.tags)
	r.chain = []Source{r.FromBody, r.FromRefererPath, r.FromAcceptLanguage}
	return r
}

func (r *Resolver) Default() string { return r.defaultLocale }

// Resolve returns the first supported locale offered by the chain.
func (r *Resolver) Resolve(body, refererPath, acceptLanguage string) string {
	signals := Signals{Body: body, RefererPath: refererPath, AcceptLanguage: acceptLanguage}
	for _, source := range r.chain {
		if loc := source(signals); loc != "" {
			return loc
		}
	}
	return r.defaultLocale
}

func (r *Resolver) FromBody(s Signals) string {
	return r.accept(s.Body)
}

// FromRefererPath reads the first path segment, so "/de/checkout" yields "de".
// Full referer URLs are accepted as well.
func (r *Resolver) FromRefererPath(s Signals) string {
	path := strings.TrimSpace(s.RefererPath)
	if path == "" {
		return ""
	}
	if i := strings.Index(path, "://"); i >= 0 {
		path = path[i+3:]
		slash := strings.IndexByte(path, '/')
		if slash < 0 {
			return ""
		}
		path = path[slash:]
	}
	path = strings.TrimPrefix(path, "/")
	segment, _, _ := strings.Cut(path, "/")
	segment, _, _ = strings.Cut(segment, "?")
	return r.accept(segment)
}

func (r *Resolver) FromAcceptLanguage(s Signals) string {
	if strings.TrimSpace(s.AcceptLanguage) == "" || len(r.tags) == 0 {
		return ""
	}
	prefs, _, err := language.ParseAcceptLanguage(s.AcceptLanguage)
	if err != nil || len(prefs) == 0 {
		return ""
	}
	_, index, confidence := r.matcher.Match(prefs...)
	if confidence == language.No {
		return ""
	}
	base, _ := r.tags[index].Base()
	return r.accept(base.String())
}

func (r *Resolver) accept(candidate string) string {
	candidate = normalize(candidate)
	if candidate == "" {
		return ""
	}
	if _, ok := r.supported[candidate]; ok {
		return candidate
	}
	// "fr-CA" falls back to "fr"
	if base, _, found := strings.Cut(candidate, "-"); found {
		if _, ok := r.supported[base]; ok {
			return base
		}
	}
	return ""
}

func normalize(code string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(code)), "_", "-")
}
