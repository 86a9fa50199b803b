package autotool

import (
	"slices"
	"strings"
)

var (
	createVerbs = wordSet("create", "add", "new", "make", "build", "generate", "post", "insert", "upload", "register", "start")
	readVerbs   = wordSet("get", "read", "list", "fetch", "retrieve", "show", "view", "describe", "head", "download", "exists", "count", "load", "iter", "iterate")
	updateVerbs = wordSet("update", "edit", "modify", "change", "set", "patch", "put", "replace", "rename", "upsert", "enable", "disable", "move", "assign")
	deleteVerbs = wordSet("delete", "remove", "destroy", "drop", "clear", "purge", "erase", "revoke", "terminate", "truncate", "unregister", "del")
	searchVerbs = wordSet("search", "find", "query", "lookup", "filter", "scan", "match")

	// safeVerbs never yield a destructive operation, whatever else the name says.
	safeVerbs = wordSet("get", "read", "list", "fetch", "retrieve", "show", "view", "describe", "head",
		"exists", "count", "search", "find", "query", "lookup", "check", "validate", "iter", "iterate")

	authWords = wordSet("authenticate", "auth", "login", "logout", "signin", "signup", "token", "tokens",
		"credential", "credentials", "oauth", "authorize", "session")

	pageWords = wordSet("page", "pages", "pager", "paged", "paginate", "paginated", "iterator", "iterable",
		"cursor", "seq", "scanner")
	pageParams   = wordSet("cursor", "page", "pagetoken", "nexttoken", "continuation", "marker", "after")
	lroWords     = wordSet("poller", "operation", "future", "lro", "job", "promise")
	ownerSuffixs = []string{"Operations", "Client", "Service", "Api", "API", "Manager", "Handler"}
)

// Classification is the result of classifying one descriptor.
type Classification struct {
	Category  Category
	Resource  string
	Flags     Flags // requiresAuth is decided per owner by Recognize
	AuthEntry bool
}

// Analysis summarizes one recognition pass.
type Analysis struct {
	// AuthEntries maps owner ("" for module level) to its auth entry point names.
	AuthEntries map[string][]string `json:"authEntries,omitempty"`
	// AuthFlows lists detected credential styles: key, oauth, session, token.
	AuthFlows  []string         `json:"authFlows,omitempty"`
	Resources  []string         `json:"resources,omitempty"`
	Categories map[Category]int `json:"categories"`
}

// Recognizer classifies descriptors into CRUD categories, resources and flags.
// It is stateless apart from its read-only overlay.
type Recognizer struct {
	overlay *Overlay
}

// NewRecognizer returns a Recognizer. o may be nil.
func NewRecognizer(o *Overlay) *Recognizer {
	return &Recognizer{overlay: o}
}

// Classify returns the category, resource noun and per-descriptor flags of d.
func (r *Recognizer) Classify(d CapabilityDescriptor) Classification {
	words := splitWords(d.Name)
	verb, rest := leadingVerb(words)
	c := Classification{Category: categorize(verb, words)}

	if c.Category == CategoryAuth || anyInSet(authWords, words) || anyInSet(authWords, splitWords(lastSegment(d.Owner))) {
		c.AuthEntry = true
	}
	c.Resource = resourceNoun(d.Owner, rest)

	switch c.Category {
	case CategoryCreate, CategoryUpdate, CategoryDelete:
		if !inSet(safeVerbs, verb) {
			c.Flags |= FlagDestructive
		}
	default:
		if r.overlay.forcesDestructive(d.Name) && !inSet(safeVerbs, verb) {
			c.Flags |= FlagDestructive
		}
	}
	if paginated(d, words) {
		c.Flags |= FlagPaginated
	}
	if longRunning(d, words) {
		c.Flags |= FlagLongRunning
	}
	return c
}

// categorize applies delete precedence first: a leading delete verb, or any
// delete word alongside an update word, is always a delete.
func categorize(verb string, words []string) Category {
	hasDelete := anyInSet(deleteVerbs, words)
	switch {
	case inSet(deleteVerbs, verb):
		return CategoryDelete
	case hasDelete && anyInSet(updateVerbs, words):
		return CategoryDelete
	case inSet(createVerbs, verb):
		return CategoryCreate
	case inSet(readVerbs, verb):
		return CategoryRead
	case inSet(updateVerbs, verb):
		return CategoryUpdate
	case inSet(searchVerbs, verb):
		return CategorySearch
	case anyInSet(authWords, words):
		return CategoryAuth
	}
	return CategoryOther
}

// resourceNoun derives the resource from the owner with generic suffixes
// stripped, or for module-level callables from the words after the verb.
func resourceNoun(owner string, rest []string) string {
	if owner != "" {
		base := lastSegment(owner)
		for _, suf := range ownerSuffixs {
			if strings.HasSuffix(base, suf) && len(base) > len(suf) {
				base = strings.TrimSuffix(base, suf)
				break
			}
		}
		return singular(camel(splitWords(base)))
	}
	var nouns []string
	for _, w := range rest {
		switch w {
		case "by", "for", "from", "to", "with", "all", "or", "and", "of", "in":
			continue
		}
		if inSet(updateVerbs, w) || inSet(deleteVerbs, w) || inSet(createVerbs, w) {
			continue
		}
		nouns = append(nouns, w)
		if len(nouns) == 2 {
			break
		}
	}
	if len(nouns) == 0 {
		return ""
	}
	return singular(camel(nouns))
}

func paginated(d CapabilityDescriptor, words []string) bool {
	if anyInSet(pageWords, splitWords(d.ReturnType)) || anyInSet(pageWords, words) {
		return true
	}
	for _, p := range d.Parameters {
		pw := splitWords(p.Name)
		if anyInSet(pageParams, pw) || inSet(pageParams, strings.Join(pw, "")) {
			return true
		}
	}
	return false
}

func longRunning(d CapabilityDescriptor, words []string) bool {
	if len(words) > 1 && words[0] == "begin" {
		return true
	}
	return anyInSet(lroWords, splitWords(d.ReturnType))
}

// Recognize classifies every descriptor and marks all non-entry descriptors
// of an owner that has an auth entry point with requiresAuth. It returns
// copies; descs is not modified.
func (r *Recognizer) Recognize(descs []CapabilityDescriptor) ([]CapabilityDescriptor, Analysis) {
	out := make([]CapabilityDescriptor, len(descs))
	classes := make([]Classification, len(descs))
	an := Analysis{AuthEntries: map[string][]string{}, Categories: map[Category]int{}}
	resources := map[string]struct{}{}
	flows := map[string]struct{}{}

	for i, d := range descs {
		c := r.Classify(d)
		classes[i] = c
		if c.AuthEntry {
			an.AuthEntries[d.Owner] = append(an.AuthEntries[d.Owner], d.Name)
			for _, f := range authFlows(d.Name) {
				flows[f] = struct{}{}
			}
		}
	}
	for i, d := range descs {
		c := classes[i]
		d.Category = c.Category
		d.Resource = c.Resource
		d.Flags = c.Flags
		if _, ok := an.AuthEntries[d.Owner]; ok && !c.AuthEntry {
			d.Flags |= FlagRequiresAuth
		}
		an.Categories[c.Category]++
		if c.Resource != "" {
			resources[c.Resource] = struct{}{}
		}
		out[i] = d
	}
	for owner := range an.AuthEntries {
		slices.Sort(an.AuthEntries[owner])
	}
	an.AuthFlows = sortedCapped(flows, len(flows))
	an.Resources = sortedCapped(resources, len(resources))
	return out, an
}

func authFlows(name string) []string {
	var out []string
	for _, w := range splitWords(name) {
		switch w {
		case "token", "tokens", "bearer":
			out = append(out, "token")
		case "session", "login", "logout", "signin", "signup":
			out = append(out, "session")
		case "oauth", "authorize":
			out = append(out, "oauth")
		case "key", "apikey", "credential", "credentials", "secret":
			out = append(out, "key")
		}
	}
	return out
}
