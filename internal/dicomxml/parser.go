// Package dicomxml implements the streaming, tag-delimited header format
// iSyntax wraps around DICOM attributes. The grammar is not general XML:
// every meaningful element is either <DataObject ObjectType="..."> (a
// branch), <Attribute Name="..." Group="0x.." Element="0x.." PMSVR="...">
// (a leaf carrying either inline text or a base64 blob), or <Array> (a
// sequence of DataObject children). A general-purpose XML library buys
// nothing here and cannot report file offsets of element content, which
// the codeblock/header-table attributes need in order to avoid copying
// multi-megabyte base64 blobs through a DOM; this package hand-rolls the
// small scanner the format actually needs instead.
package dicomxml

import (
	"fmt"
)

// NodeType classifies a parsed element.
type NodeType int

const (
	NodeNone NodeType = iota
	NodeLeaf          // <Attribute>
	NodeBranch        // <DataObject>
	NodeArray         // <Array>
)

// Node is one element of the parsed header tree.
type Node struct {
	Type NodeType

	// DataObject attributes.
	ObjectType string

	// Attribute attributes.
	Name    string
	Group   uint16
	Element uint16
	PMSVR   string

	// Text is the element's inline content, with leading/trailing
	// whitespace trimmed. For large base64 payloads (block header tables,
	// the associated JPEG, the ICC profile) the format still delivers the
	// content inline; ContentOffset/ContentLength locate it in the
	// original file so callers can re-read and base64-decode it lazily
	// instead of holding it twice in memory.
	Text          string
	ContentOffset int64
	ContentLength int

	Children []*Node
}

// Tag returns the (Group, Element) pair of a leaf node.
func (n *Node) Tag() Tag { return Tag{n.Group, n.Element} }

// Find returns the first direct child leaf with the given tag, or nil.
func (n *Node) Find(tag Tag) *Node {
	for _, c := range n.Children {
		if c.Type == NodeLeaf && c.Tag() == tag {
			return c
		}
	}
	return nil
}

// FindAll returns every direct child leaf with the given tag.
func (n *Node) FindAll(tag Tag) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Type == NodeLeaf && c.Tag() == tag {
			out = append(out, c)
		}
	}
	return out
}

// FindObjectType returns the first direct child DataObject with the given
// ObjectType attribute, or nil.
func (n *Node) FindObjectType(objectType string) *Node {
	for _, c := range n.Children {
		if c.Type == NodeBranch && c.ObjectType == objectType {
			return c
		}
	}
	return nil
}

// Parse scans data (the iSyntax XML header, in full) and returns its root
// node. baseOffset is the absolute file offset of data[0], so that
// ContentOffset fields on the returned tree are usable against the
// original file handle.
func Parse(data []byte, baseOffset int64) (*Node, error) {
	p := &scanner{data: data, baseOffset: baseOffset}
	root := &Node{Type: NodeBranch}
	if err := p.parseChildren(root, ""); err != nil {
		return nil, fmt.Errorf("dicomxml: %w", err)
	}
	return root, nil
}

type scanner struct {
	data       []byte
	pos        int
	baseOffset int64
}

func (s *scanner) eof() bool { return s.pos >= len(s.data) }

func (s *scanner) skipWhitespace() {
	for !s.eof() && isSpace(s.data[s.pos]) {
		s.pos++
	}
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

// parseChildren consumes sibling content until it sees the closing tag for
// the element named parentTag (or end of input, for the synthetic root
// whose parentTag is ""). Plain text found directly inside parent (not
// inside a nested element) is accumulated into parent.Text.
func (s *scanner) parseChildren(parent *Node, parentTag string) error {
	for {
		if s.eof() {
			if parentTag != "" {
				return fmt.Errorf("unexpected end of document inside <%s>", parentTag)
			}
			return nil
		}
		if s.data[s.pos] != '<' {
			textStart := s.pos
			for !s.eof() && s.data[s.pos] != '<' {
				s.pos++
			}
			if parent.ContentOffset == 0 {
				parent.ContentOffset = s.baseOffset + int64(textStart)
			}
			parent.Text += unescape(string(s.data[textStart:s.pos]))
			parent.ContentLength = s.pos - (int(parent.ContentOffset-s.baseOffset))
			continue
		}
		if s.pos+1 < len(s.data) && s.data[s.pos+1] == '/' {
			// closing tag
			end := indexByte(s.data, s.pos, '>')
			if end < 0 {
				return fmt.Errorf("unterminated closing tag")
			}
			name := string(s.data[s.pos+2 : end])
			s.pos = end + 1
			if name != parentTag {
				return fmt.Errorf("mismatched closing tag </%s>, expected </%s>", name, parentTag)
			}
			parent.Text = trimSpace(parent.Text)
			return nil
		}
		if s.pos+1 < len(s.data) && s.data[s.pos+1] == '?' {
			// <?xml ... ?> declaration
			end := indexString(s.data, s.pos, "?>")
			if end < 0 {
				return fmt.Errorf("unterminated xml declaration")
			}
			s.pos = end + 2
			continue
		}

		name, attrs, selfClosed, err := s.parseStartTag()
		if err != nil {
			return err
		}

		node := &Node{}
		switch name {
		case "Attribute":
			node.Type = NodeLeaf
			node.Name = attrs["Name"]
			node.Group = hexUint16(attrs["Group"])
			node.Element = hexUint16(attrs["Element"])
			node.PMSVR = attrs["PMSVR"]
		case "DataObject":
			node.Type = NodeBranch
			node.ObjectType = attrs["ObjectType"]
		case "Array":
			node.Type = NodeArray
		default:
			node.Type = NodeNone
		}

		if !selfClosed {
			if err := s.parseChildren(node, name); err != nil {
				return err
			}
		}

		parent.Children = append(parent.Children, node)
	}
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

// parseStartTag parses "<Name attr=\"val\" ...>" or "<Name .../>" starting
// at '<', leaving s.pos positioned just past '>'. For a non-self-closing
// tag, the raw inline text up to the next '<' is captured into the
// still-open node by the caller, via parseChildren's textStart
// bookkeeping; parseStartTag itself only returns the tag name and
// attributes.
func (s *scanner) parseStartTag() (name string, attrs map[string]string, selfClosed bool, err error) {
	s.pos++ // consume '<'
	start := s.pos
	for !s.eof() && !isSpace(s.data[s.pos]) && s.data[s.pos] != '>' && s.data[s.pos] != '/' {
		s.pos++
	}
	name = string(s.data[start:s.pos])
	attrs = map[string]string{}

	for {
		s.skipWhitespace()
		if s.eof() {
			return "", nil, false, fmt.Errorf("unterminated start tag <%s>", name)
		}
		if s.data[s.pos] == '/' {
			selfClosed = true
			s.pos++
			s.skipWhitespace()
			if s.eof() || s.data[s.pos] != '>' {
				return "", nil, false, fmt.Errorf("malformed self-closing tag <%s>", name)
			}
			s.pos++
			return name, attrs, selfClosed, nil
		}
		if s.data[s.pos] == '>' {
			s.pos++
			// Inline text content is not read here: if the very next
			// bytes are not '<', the caller's child scan captures them
			// as this element's text (the common case for
			// <Attribute>...</Attribute>).
			return name, attrs, selfClosed, nil
		}

		attrStart := s.pos
		for !s.eof() && s.data[s.pos] != '=' && !isSpace(s.data[s.pos]) {
			s.pos++
		}
		attrName := string(s.data[attrStart:s.pos])
		s.skipWhitespace()
		if s.eof() || s.data[s.pos] != '=' {
			return "", nil, false, fmt.Errorf("malformed attribute %q in <%s>", attrName, name)
		}
		s.pos++
		s.skipWhitespace()
		if s.eof() || (s.data[s.pos] != '"' && s.data[s.pos] != '\'') {
			return "", nil, false, fmt.Errorf("malformed attribute value for %q in <%s>", attrName, name)
		}
		quote := s.data[s.pos]
		s.pos++
		valStart := s.pos
		for !s.eof() && s.data[s.pos] != quote {
			s.pos++
		}
		if s.eof() {
			return "", nil, false, fmt.Errorf("unterminated attribute value for %q in <%s>", attrName, name)
		}
		attrs[attrName] = unescape(string(s.data[valStart:s.pos]))
		s.pos++ // consume closing quote
	}
}

func indexByte(data []byte, from int, b byte) int {
	for i := from; i < len(data); i++ {
		if data[i] == b {
			return i
		}
	}
	return -1
}

func indexString(data []byte, from int, s string) int {
	for i := from; i+len(s) <= len(data); i++ {
		if string(data[i:i+len(s)]) == s {
			return i
		}
	}
	return -1
}

func hexUint16(s string) uint16 {
	var v uint16
	start := 0
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		start = 2
	}
	for i := start; i < len(s); i++ {
		c := s[i]
		var d uint16
		switch {
		case c >= '0' && c <= '9':
			d = uint16(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint16(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = uint16(c-'A') + 10
		default:
			return v
		}
		v = v*16 + d
	}
	return v
}

func unescape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '&' {
			if rest := s[i:]; hasPrefix(rest, "&amp;") {
				out = append(out, '&')
				i += 4
				continue
			} else if hasPrefix(rest, "&lt;") {
				out = append(out, '<')
				i += 3
				continue
			} else if hasPrefix(rest, "&gt;") {
				out = append(out, '>')
				i += 3
				continue
			} else if hasPrefix(rest, "&quot;") {
				out = append(out, '"')
				i += 5
				continue
			} else if hasPrefix(rest, "&apos;") {
				out = append(out, '\'')
				i += 5
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
