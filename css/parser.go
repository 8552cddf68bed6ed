package css

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser parses stylesheets and inline style attributes.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css")}
}

// ParseInline parses the contents of a style="" attribute into declarations.
func (p *Parser) ParseInline(data string) Props {
	if strings.TrimSpace(data) == "" {
		return nil
	}
	input := parse.NewInput(bytes.NewReader([]byte(data)))
	parser := css.NewParser(input, true)

	props := make(Props)
	for {
		gt, _, decl := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			if len(props) == 0 {
				return nil
			}
			return props
		case css.DeclarationGrammar:
			if values := parser.Values(); len(values) > 0 {
				props[strings.ToLower(string(decl))] = propertyValue(values)
			}
		}
	}
}

// Parse parses a stylesheet, keeping only rules with supported selectors.
// The optional source parameter identifies what's being parsed for logging.
func (p *Parser) Parse(data []byte, source ...string) *Stylesheet {
	sheet := &Stylesheet{}

	if len(source) > 0 && source[0] != "" {
		p.log.Debug("parsing stylesheet", zap.String("source", source[0]), zap.Int("bytes", len(data)))
	}

	input := parse.NewInput(bytes.NewReader(data))
	parser := css.NewParser(input, false)

	// Grouped selectors arrive one prelude at a time before the ruleset
	// opens, so they accumulate until the declarations are seen.
	var selectors []Selector

	for {
		gt, _, data := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			if err := parser.Err(); err != nil && err.Error() != "EOF" {
				p.log.Debug("stylesheet parse error", zap.Error(err))
			}
			return sheet

		case css.BeginAtRuleGrammar:
			// Media queries, font faces and the rest have no meaning on a
			// fixed monochrome viewport.
			sheet.Warnings = append(sheet.Warnings, "skipped at-rule: "+string(data))
			p.skipAtRuleBlock(parser)

		case css.AtRuleGrammar:
			sheet.Warnings = append(sheet.Warnings, "skipped at-rule: "+string(data))

		case css.QualifiedRuleGrammar:
			selectors = append(selectors, p.parseSelectors(data, parser.Values(), sheet)...)

		case css.BeginRulesetGrammar:
			selectors = append(selectors, p.parseSelectors(data, parser.Values(), sheet)...)
			props := p.parseDeclarations(parser)
			if len(props) > 0 {
				for _, sel := range selectors {
					sheet.Rules = append(sheet.Rules, Rule{Selector: sel, Props: props})
				}
			}
			selectors = nil
		}
	}
}

// parseSelectors extracts the supported selectors from a ruleset prelude.
func (p *Parser) parseSelectors(data []byte, values []css.Token, sheet *Stylesheet) []Selector {
	var sb strings.Builder
	sb.Write(data)
	for _, v := range values {
		sb.Write(v.Data)
	}

	var out []Selector
	for _, s := range strings.Split(sb.String(), ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		sel, ok := p.parseSelector(s)
		if !ok {
			sheet.Warnings = append(sheet.Warnings, "unsupported selector: "+s)
			p.log.Debug("skipping selector", zap.String("selector", s))
			continue
		}
		out = append(out, sel)
	}
	return out
}

// parseSelector handles element, .class and element.class selectors.
// Combinators, attribute selectors and pseudo classes are rejected.
func (p *Parser) parseSelector(s string) (Selector, bool) {
	if strings.ContainsAny(s, "+~>[]: \t\n*#") {
		return Selector{Raw: s}, false
	}
	sel := Selector{Raw: s}
	element, class, found := strings.Cut(s, ".")
	sel.Element = strings.ToLower(element)
	if found {
		if class == "" || strings.Contains(class, ".") {
			return Selector{Raw: s}, false
		}
		sel.Class = class
	}
	if sel.Element == "" && sel.Class == "" {
		return Selector{Raw: s}, false
	}
	return sel, true
}

// parseDeclarations consumes property declarations until the ruleset ends.
func (p *Parser) parseDeclarations(parser *css.Parser) Props {
	props := make(Props)
	for {
		gt, _, data := parser.Next()
		switch gt {
		case css.ErrorGrammar, css.EndRulesetGrammar:
			return props
		case css.DeclarationGrammar:
			if values := parser.Values(); len(values) > 0 {
				props[strings.ToLower(string(data))] = propertyValue(values)
			}
		}
	}
}

// skipAtRuleBlock skips tokens until the matching end of an @-rule block.
func (p *Parser) skipAtRuleBlock(parser *css.Parser) {
	depth := 1
	for depth > 0 {
		gt, _, _ := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			return
		case css.BeginAtRuleGrammar, css.BeginRulesetGrammar:
			depth++
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			depth--
		}
	}
}

// propertyValue converts declaration tokens to a Value.
func propertyValue(tokens []css.Token) Value {
	var rawParts []string
	for _, t := range tokens {
		if t.TokenType != css.WhitespaceToken {
			rawParts = append(rawParts, string(t.Data))
		} else if len(rawParts) > 0 {
			rawParts = append(rawParts, " ")
		}
	}
	val := Value{Raw: strings.TrimSpace(strings.Join(rawParts, ""))}

	if len(tokens) == 1 || (len(tokens) == 2 && tokens[1].TokenType == css.WhitespaceToken) {
		t := tokens[0]
		switch t.TokenType {
		case css.DimensionToken:
			val.Value, val.Unit = parseDimension(string(t.Data))
		case css.PercentageToken:
			val.Value, _ = strconv.ParseFloat(strings.TrimSuffix(string(t.Data), "%"), 64)
			val.Unit = "%"
		case css.NumberToken:
			val.Value, _ = strconv.ParseFloat(string(t.Data), 64)
		case css.IdentToken:
			val.Keyword = strings.ToLower(string(t.Data))
		case css.StringToken:
			val.Keyword = unquote(string(t.Data))
		}
		return val
	}

	// Multi-value properties keep the collapsed raw form.
	val.Keyword = strings.ToLower(val.Raw)
	return val
}

// parseDimension extracts numeric value and unit from a dimension token.
func parseDimension(s string) (float64, string) {
	numEnd := 0
	for i, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == '-' || r == '+' {
			numEnd = i + 1
		} else {
			break
		}
	}
	if numEnd == 0 {
		return 0, ""
	}
	num, _ := strconv.ParseFloat(s[:numEnd], 64)
	return num, strings.ToLower(s[numEnd:])
}

// unquote removes surrounding quotes from a string.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	if (s[0] == '"' && s[len(s)-1] == '"') ||
		(s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}
