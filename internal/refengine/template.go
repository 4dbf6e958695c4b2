package refengine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/liquidlab/liquidspec/internal/drop"
)

// Template is a parsed template held inside the engine process. The
// harness only ever sees its id.
type Template struct {
	nodes      []node
	filesystem map[string]string
}

// parseError is a compile-time failure with a 1-based source line.
type parseError struct {
	line    int
	message string
}

func (e *parseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.line, e.message)
}

type node interface {
	render(rc *renderContext, out *strings.Builder)
}

// textNode is raw template text between markup.
type textNode struct {
	text string
}

// outputNode is a {{ expression | filter | ... }} substitution.
type outputNode struct {
	line    int
	expr    expression
	filters []string
}

// forNode is a {% for x in path %} body {% endfor %} loop.
type forNode struct {
	line     int
	variable string
	expr     expression
	body     []node
}

// includeNode splices a partial from the compile-time virtual
// filesystem.
type includeNode struct {
	tmpl *Template
}

// expression is either a literal or a dotted variable path.
type expression struct {
	literal any // non-nil for string/number literals
	path    []string
}

// parse compiles template source. fs is the virtual file map backing
// {% include %}; partials are parsed eagerly so includes of missing,
// broken, or mutually including files are compile errors, matching the
// strict-include behavior the conformance suite expects.
func parse(source string, fs map[string]string) (*Template, error) {
	return parseWithChain(source, fs, map[string]bool{})
}

// parseWithChain carries the set of partials currently being expanded,
// so an include chain that re-enters one of its own partials is a parse
// error instead of unbounded recursion.
func parseWithChain(source string, fs map[string]string, including map[string]bool) (*Template, error) {
	p := &parser{source: source, line: 1, fs: fs, including: including}
	nodes, err := p.parseNodes("")
	if err != nil {
		return nil, err
	}
	return &Template{nodes: nodes, filesystem: fs}, nil
}

type parser struct {
	source    string
	pos       int
	line      int
	fs        map[string]string
	including map[string]bool
}

// parseNodes consumes nodes until the closing tag named by until (or
// end of input when until is empty).
func (p *parser) parseNodes(until string) ([]node, error) {
	var nodes []node
	for p.pos < len(p.source) {
		rest := p.source[p.pos:]
		openOut := strings.Index(rest, "{{")
		openTag := strings.Index(rest, "{%")

		open := -1
		isTag := false
		switch {
		case openOut >= 0 && (openTag < 0 || openOut < openTag):
			open = openOut
		case openTag >= 0:
			open = openTag
			isTag = true
		}

		if open < 0 {
			nodes = append(nodes, &textNode{text: rest})
			p.advance(len(rest))
			break
		}
		if open > 0 {
			nodes = append(nodes, &textNode{text: rest[:open]})
			p.advance(open)
		}

		if isTag {
			name, arg, err := p.readTag()
			if err != nil {
				return nil, err
			}
			if until != "" && name == until {
				return nodes, nil
			}
			n, err := p.parseTag(name, arg)
			if err != nil {
				return nil, err
			}
			if n != nil {
				nodes = append(nodes, n)
			}
			continue
		}

		n, err := p.readOutput()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if until != "" {
		return nil, &parseError{line: p.line, message: fmt.Sprintf("missing closing tag %q", until)}
	}
	return nodes, nil
}

// readOutput consumes a {{ ... }} block.
func (p *parser) readOutput() (node, error) {
	startLine := p.line
	rest := p.source[p.pos:]
	end := strings.Index(rest, "}}")
	if end < 0 {
		return nil, &parseError{line: startLine, message: "unterminated output markup"}
	}
	inner := rest[2:end]
	p.advance(end + 2)

	parts := strings.Split(inner, "|")
	expr, err := parseExpression(strings.TrimSpace(parts[0]), startLine)
	if err != nil {
		return nil, err
	}
	var filters []string
	for _, f := range parts[1:] {
		name := strings.TrimSpace(f)
		if name == "" {
			return nil, &parseError{line: startLine, message: "empty filter"}
		}
		filters = append(filters, name)
	}
	return &outputNode{line: startLine, expr: expr, filters: filters}, nil
}

// readTag consumes a {% name arg... %} block and returns its name and
// raw argument text.
func (p *parser) readTag() (string, string, error) {
	startLine := p.line
	rest := p.source[p.pos:]
	end := strings.Index(rest, "%}")
	if end < 0 {
		return "", "", &parseError{line: startLine, message: "unterminated tag markup"}
	}
	inner := strings.TrimSpace(rest[2:end])
	p.advance(end + 2)

	name, arg, _ := strings.Cut(inner, " ")
	return name, strings.TrimSpace(arg), nil
}

func (p *parser) parseTag(name, arg string) (node, error) {
	startLine := p.line
	switch name {
	case "for":
		variable, rest, ok := strings.Cut(arg, " in ")
		variable = strings.TrimSpace(variable)
		if !ok || variable == "" {
			return nil, &parseError{line: startLine, message: "malformed for tag"}
		}
		expr, err := parseExpression(strings.TrimSpace(rest), startLine)
		if err != nil {
			return nil, err
		}
		body, err := p.parseNodes("endfor")
		if err != nil {
			return nil, err
		}
		return &forNode{line: startLine, variable: variable, expr: expr, body: body}, nil

	case "include":
		partial, err := unquote(arg)
		if err != nil {
			return nil, &parseError{line: startLine, message: "include expects a quoted partial name"}
		}
		source, ok := p.fs[partial]
		if !ok {
			return nil, &parseError{line: startLine, message: fmt.Sprintf("partial %q not found", partial)}
		}
		if p.including[partial] {
			return nil, &parseError{line: startLine, message: fmt.Sprintf("cyclic include of partial %q", partial)}
		}
		p.including[partial] = true
		tmpl, err := parseWithChain(source, p.fs, p.including)
		delete(p.including, partial)
		if err != nil {
			return nil, &parseError{line: startLine, message: fmt.Sprintf("partial %q: %v", partial, err)}
		}
		return &includeNode{tmpl: tmpl}, nil

	case "comment":
		if _, err := p.parseNodes("endcomment"); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		return nil, &parseError{line: startLine, message: fmt.Sprintf("unknown tag %q", name)}
	}
}

// advance moves the cursor and keeps the line counter honest.
func (p *parser) advance(n int) {
	p.line += strings.Count(p.source[p.pos:p.pos+n], "\n")
	p.pos += n
}

func parseExpression(s string, line int) (expression, error) {
	if s == "" {
		return expression{}, &parseError{line: line, message: "empty expression"}
	}
	if s[0] == '"' || s[0] == '\'' {
		lit, err := unquote(s)
		if err != nil {
			return expression{}, &parseError{line: line, message: "unterminated string literal"}
		}
		return expression{literal: lit}, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return expression{literal: n}, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return expression{literal: f}, nil
	}
	return expression{path: strings.Split(s, ".")}, nil
}

func unquote(s string) (string, error) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], nil
	}
	return "", fmt.Errorf("not a quoted string: %q", s)
}

// renderContext carries per-render state: the environment (with drop
// proxies already reconstituted), render options, and collected errors.
type renderContext struct {
	env    map[string]any
	strict bool
	errs   []string
}

// fail renders an error inline and records it. Render errors never
// abort the render; the output carries them, the errors list reports
// them.
func (rc *renderContext) fail(out *strings.Builder, msg string) {
	rc.errs = append(rc.errs, msg)
	out.WriteString("Liquid error: " + msg)
}

func (t *Template) render(rc *renderContext) string {
	var out strings.Builder
	for _, n := range t.nodes {
		n.render(rc, &out)
	}
	return out.String()
}

func (n *textNode) render(rc *renderContext, out *strings.Builder) {
	out.WriteString(n.text)
}

func (n *outputNode) render(rc *renderContext, out *strings.Builder) {
	value, err := n.expr.eval(rc)
	if err != nil {
		rc.fail(out, err.Error())
		return
	}
	if value == nil && rc.strict && n.expr.literal == nil {
		rc.fail(out, fmt.Sprintf("undefined variable %q", strings.Join(n.expr.path, ".")))
		return
	}
	for _, f := range n.filters {
		value, err = applyFilter(f, value)
		if err != nil {
			rc.fail(out, err.Error())
			return
		}
	}
	s, err := stringify(value)
	if err != nil {
		rc.fail(out, err.Error())
		return
	}
	out.WriteString(s)
}

func (n *forNode) render(rc *renderContext, out *strings.Builder) {
	value, err := n.expr.eval(rc)
	if err != nil {
		rc.fail(out, err.Error())
		return
	}
	items, err := members(value)
	if err != nil {
		rc.fail(out, err.Error())
		return
	}
	shadowed, had := rc.env[n.variable]
	defer func() {
		if had {
			rc.env[n.variable] = shadowed
		} else {
			delete(rc.env, n.variable)
		}
	}()
	for _, item := range items {
		rc.env[n.variable] = item
		for _, b := range n.body {
			b.render(rc, out)
		}
	}
}

func (n *includeNode) render(rc *renderContext, out *strings.Builder) {
	out.WriteString(n.tmpl.render(rc))
}

// eval resolves an expression against the environment. Each step of a
// dotted path through a drop proxy crosses the pipe as a callback.
func (e expression) eval(rc *renderContext) (any, error) {
	if e.literal != nil {
		return e.literal, nil
	}
	var current any = rc.env
	for _, step := range e.path {
		switch v := current.(type) {
		case map[string]any:
			current = v[step]
		case *drop.Proxy:
			got, err := v.Get(step)
			if err != nil {
				return nil, err
			}
			current = got
		case nil:
			return nil, nil
		default:
			return nil, nil
		}
	}
	return current, nil
}

func applyFilter(name string, value any) (any, error) {
	switch name {
	case "upcase":
		s, err := stringify(value)
		if err != nil {
			return nil, err
		}
		return strings.ToUpper(s), nil
	case "downcase":
		s, err := stringify(value)
		if err != nil {
			return nil, err
		}
		return strings.ToLower(s), nil
	case "size":
		switch v := value.(type) {
		case string:
			return int64(len(v)), nil
		case []any:
			return int64(len(v)), nil
		case map[string]any:
			return int64(len(v)), nil
		case *drop.Proxy:
			items, err := v.Members()
			if err != nil {
				return nil, err
			}
			return int64(len(items)), nil
		default:
			return int64(0), nil
		}
	default:
		return nil, fmt.Errorf("unknown filter %q", name)
	}
}

// stringify renders a value as template output text. A proxy drop asks
// the host for its text form via a to_s callback.
func stringify(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case *drop.Proxy:
		got, err := v.Call("to_s", []any{})
		if err != nil {
			return "", err
		}
		return stringify(got)
	case []any:
		var b strings.Builder
		for _, item := range v {
			s, err := stringify(item)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		}
		return b.String(), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// members lists the items a for loop walks over.
func members(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case *drop.Proxy:
		return v.Members()
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("value is not iterable")
	}
}
