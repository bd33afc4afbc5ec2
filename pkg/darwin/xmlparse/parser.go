package xmlparse

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ScalarKind selects the coercion applied to a collapsed path.
type ScalarKind int

const (
	KindString ScalarKind = iota
	KindInt
	KindFloat
	KindBool
)

// Config shapes the decoded tree.
type Config struct {
	// ListPaths are dotted paths whose children accumulate, in order and
	// heterogeneously, under the "list" key.
	ListPaths []string
	// FoldedLists are dotted paths where repeated same-name children
	// collapse into a homogeneous sequence under the child name.
	FoldedLists []string
	// Detokenise are paths below which inner tags are re-serialized into
	// the containing element's text (embedded HTML fragments).
	Detokenise []string
	// CollapseData are scalar-valued paths: the element becomes a plain
	// value attached to its parent instead of a nested node.
	CollapseData []string
	// CollapseTypes applies typed coercion to collapsed paths.
	CollapseTypes map[string]ScalarKind
	// ExcludeKeys are subtrees whose content is wholly discarded.
	ExcludeKeys []string
	// StripWhitespace suppresses all-whitespace text runs while the
	// accumulated text is itself whitespace.
	StripWhitespace bool
	// IncludeTags records the element name under the "tag" key.
	IncludeTags bool
}

// Parser is a streaming path-driven XML decoder. A Parser is immutable
// after construction and restartable: each Parse call decodes one
// document with fresh state.
type Parser struct {
	cfg      Config
	list     map[string]bool
	folded   map[string]bool
	collapse map[string]bool
	kinds    map[string]ScalarKind
	exclude  []string
	detok    []string
}

// New builds a Parser from cfg.
func New(cfg Config) *Parser {
	p := &Parser{
		cfg:      cfg,
		list:     make(map[string]bool, len(cfg.ListPaths)),
		folded:   make(map[string]bool, len(cfg.FoldedLists)),
		collapse: make(map[string]bool, len(cfg.CollapseData)),
		kinds:    cfg.CollapseTypes,
		exclude:  cfg.ExcludeKeys,
		detok:    cfg.Detokenise,
	}
	for _, path := range cfg.ListPaths {
		p.list[path] = true
	}
	for _, path := range cfg.FoldedLists {
		p.folded[path] = true
	}
	for _, path := range cfg.CollapseData {
		p.collapse[path] = true
	}
	return p
}

// Parse decodes one XML document from r.
func (p *Parser) Parse(r io.Reader) (*Node, error) {
	root := NewNode()
	s := &state{p: p, nodes: []*Node{root}}

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xml decode failed: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			s.start(t)
		case xml.EndElement:
			if err := s.end(t); err != nil {
				return nil, err
			}
		case xml.CharData:
			s.text(string(t))
		}
	}
	return root, nil
}

type state struct {
	p     *Parser
	paths []string // joined dotted path per open element
	names []string // local name per open element
	nodes []*Node  // open containers; nodes[0] is the root
}

func (s *state) curPath() string {
	if len(s.paths) == 0 {
		return ""
	}
	return s.paths[len(s.paths)-1]
}

func (s *state) curName() string {
	if len(s.names) == 0 {
		return ""
	}
	return s.names[len(s.names)-1]
}

func (s *state) curNode() *Node {
	return s.nodes[len(s.nodes)-1]
}

func (s *state) start(t xml.StartElement) {
	name := localName(t.Name.Local)
	cur := s.curPath()

	if s.p.detokenised(cur) {
		// Rewrite the tag back into the surrounding text.
		var b strings.Builder
		b.WriteByte('<')
		b.WriteString(name)
		for _, a := range t.Attr {
			if namespaceAttr(a.Name) {
				continue
			}
			b.WriteByte(' ')
			b.WriteString(localName(a.Name.Local))
			b.WriteString(`="`)
			b.WriteString(a.Value)
			b.WriteByte('"')
		}
		b.WriteByte('>')
		s.curNode().appendText(b.String())
		return
	}

	path := name
	if cur != "" {
		path = cur + "." + name
	}

	node := NewNode()
	if s.p.cfg.IncludeTags {
		node.Set("tag", name)
	}
	for _, a := range t.Attr {
		if namespaceAttr(a.Name) {
			continue
		}
		node.Set(localName(a.Name.Local), a.Value)
	}

	parent := s.curNode()
	switch {
	case s.p.excluded(path):
		// Discarded subtree: parsed but never attached.
	case parent.Has("list"):
		l, _ := parent.vals["list"].([]*Node)
		parent.vals["list"] = append(l, node)
	case s.p.folded[path]:
		if s.p.collapse[path] {
			l, _ := parent.vals[name].([]any)
			parent.Set(name, append(l, ""))
		} else {
			l, _ := parent.vals[name].([]*Node)
			parent.Set(name, append(l, node))
		}
	case s.p.collapse[path]:
		parent.Set(name, "")
	default:
		parent.Set(name, node)
	}

	s.paths = append(s.paths, path)
	s.names = append(s.names, name)
	if !s.p.collapse[path] {
		s.nodes = append(s.nodes, node)
		if s.p.list[path] {
			node.Set("list", []*Node{})
		}
	}
}

func (s *state) end(t xml.EndElement) error {
	name := localName(t.Name.Local)
	cur := s.curPath()

	if s.p.detokenised(cur) && s.curName() != name {
		s.curNode().appendText("</" + name + ">")
		return nil
	}

	if s.p.collapse[cur] {
		if kind, ok := s.p.kinds[cur]; ok && kind != KindString {
			if err := s.coerce(cur, name, kind); err != nil {
				return err
			}
		}
		// Path was tracked for this element but no node was pushed.
		s.paths = s.paths[:len(s.paths)-1]
		s.names = s.names[:len(s.names)-1]
		return nil
	}

	s.paths = s.paths[:len(s.paths)-1]
	s.names = s.names[:len(s.names)-1]
	s.nodes = s.nodes[:len(s.nodes)-1]
	return nil
}

func (s *state) text(data string) {
	cur := s.curPath()
	if cur == "" {
		return
	}

	if s.p.collapse[cur] {
		name := s.curName()
		parent := s.curNode()
		if s.p.folded[cur] {
			l, _ := parent.vals[name].([]any)
			if len(l) > 0 {
				str, _ := l[len(l)-1].(string)
				l[len(l)-1] = str + data
			}
		} else {
			str, _ := parent.vals[name].(string)
			parent.vals[name] = str + data
		}
		return
	}

	if s.p.excluded(cur) {
		return
	}

	node := s.curNode()
	if s.p.cfg.StripWhitespace && whitespace(data) && whitespace(node.Text()) {
		return
	}
	node.appendText(data)
}

func (s *state) coerce(path, name string, kind ScalarKind) error {
	parent := s.curNode()
	raw := ""
	if s.p.folded[path] {
		l, _ := parent.vals[name].([]any)
		if len(l) == 0 {
			return nil
		}
		raw, _ = l[len(l)-1].(string)
	} else {
		raw, _ = parent.vals[name].(string)
	}

	var value any
	switch kind {
	case KindInt:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("path %s: invalid int %q", path, raw)
		}
		value = n
	case KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("path %s: invalid float %q", path, raw)
		}
		value = f
	case KindBool:
		switch strings.TrimSpace(raw) {
		case "true":
			value = true
		case "false":
			value = false
		default:
			return fmt.Errorf("path %s: invalid bool %q", path, raw)
		}
	}

	if s.p.folded[path] {
		l, _ := parent.vals[name].([]any)
		l[len(l)-1] = value
	} else {
		parent.vals[name] = value
	}
	return nil
}

func (p *Parser) detokenised(path string) bool {
	for _, prefix := range p.detok {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (p *Parser) excluded(path string) bool {
	for _, prefix := range p.exclude {
		if path == prefix || strings.HasPrefix(path, prefix+".") {
			return true
		}
	}
	return false
}

// localName drops any namespace prefix, keeping the last segment.
func localName(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func namespaceAttr(name xml.Name) bool {
	return name.Space == "xmlns" || strings.HasPrefix(name.Local, "xmlns")
}

func whitespace(s string) bool {
	return strings.TrimSpace(s) == ""
}
