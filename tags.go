package oofs

// Tag is an opaque marker identity used to categorize failures.
// Create one per category at package scope:
//
//	var Retry = oofs.NewTag("retry")
//
// Tags are compared by token identity, not by name, so two tags created
// with the same name are still distinct. This keeps membership tests a
// pointer comparison and makes tag identity deterministic across the
// whole process.
type Tag struct {
	tok *tagToken
}

type tagToken struct {
	name string
}

// NewTag registers a new tag identity. The name is only used when the
// tag is printed; it carries no identity.
func NewTag(name string) Tag {
	return Tag{tok: &tagToken{name: name}}
}

// Name returns the display name the tag was registered with.
func (t Tag) Name() string {
	if t.tok == nil {
		return ""
	}
	return t.tok.name
}

// IsZero reports whether t is the zero Tag (never registered).
func (t Tag) IsZero() bool { return t.tok == nil }

// tagSet is an ordered, duplicate-free set of tags. A small slice beats
// a map here: frames carry very few tags and iteration order stays
// deterministic for rendering and tests.
type tagSet struct {
	tags []Tag
}

// add inserts t if not already present. Zero tags are ignored.
func (s *tagSet) add(t Tag) {
	if t.tok == nil || s.has(t) {
		return
	}
	s.tags = append(s.tags, t)
}

func (s *tagSet) has(t Tag) bool {
	for _, have := range s.tags {
		if have.tok == t.tok {
			return true
		}
	}
	return false
}

func (s *tagSet) len() int { return len(s.tags) }
