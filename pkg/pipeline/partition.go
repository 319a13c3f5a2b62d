package pipeline

import (
	"fmt"
	"strings"

	"github.com/basinrelay/flowgate/pkg/event"
)

// templateSegment is either literal text or a resolved field reference,
// the same "match a fixed piece, then a variable piece" shape the
// teacher's Router uses to split a host pattern on its wildcard.
type templateSegment struct {
	literal string
	path    event.Path
	isField bool
}

// Template is a partition key template: plain text interleaved with
// `{{ field.path }}` references resolved against an event's fields.
type Template []templateSegment

// ParseTemplate compiles a partition key template. `{{` / `}}` delimit
// a field reference; anything else is copied through literally.
func ParseTemplate(s string) (Template, error) {
	var tmpl Template
	for len(s) > 0 {
		start := strings.Index(s, "{{")
		if start == -1 {
			tmpl = append(tmpl, templateSegment{literal: s})
			break
		}
		if start > 0 {
			tmpl = append(tmpl, templateSegment{literal: s[:start]})
		}
		s = s[start+2:]
		end := strings.Index(s, "}}")
		if end == -1 {
			return nil, fmt.Errorf("pipeline: unterminated %q in template", "{{")
		}
		fieldExpr := strings.TrimSpace(s[:end])
		path, err := event.ParsePath(fieldExpr)
		if err != nil {
			return nil, fmt.Errorf("pipeline: template field %q: %w", fieldExpr, err)
		}
		tmpl = append(tmpl, templateSegment{path: path, isField: true})
		s = s[end+2:]
	}
	return tmpl, nil
}

// Resolve renders the template against e. It returns an error naming
// the unresolvable field when any referenced field is absent from e;
// callers must drop the event with Rejected status in that case, per
// the partitioning contract.
func (t Template) Resolve(e event.Event) (string, error) {
	var sb strings.Builder
	for _, seg := range t {
		if !seg.isField {
			sb.WriteString(seg.literal)
			continue
		}
		v, ok := e.Get(seg.path)
		if !ok {
			return "", fmt.Errorf("pipeline: partition key field %q not present on event", seg.path)
		}
		sb.WriteString(v.String())
	}
	return sb.String(), nil
}

// Partitioner maps an event to a partition string. A nil template
// (NewUnkeyedPartitioner) always resolves to the empty partition, for
// sinks with no partitioning concept.
type Partitioner struct {
	tmpl Template
}

// NewPartitioner compiles tmplString into a Partitioner.
func NewPartitioner(tmplString string) (*Partitioner, error) {
	tmpl, err := ParseTemplate(tmplString)
	if err != nil {
		return nil, err
	}
	return &Partitioner{tmpl: tmpl}, nil
}

// NewUnkeyedPartitioner returns a Partitioner that always yields a
// single partition, for sinks that don't distinguish batches.
func NewUnkeyedPartitioner() *Partitioner {
	return &Partitioner{}
}

// Key resolves e's partition key.
func (p *Partitioner) Key(e event.Event) (string, error) {
	if p.tmpl == nil {
		return "", nil
	}
	return p.tmpl.Resolve(e)
}
