// Package circuit parses circuit description codes (CDC) and evaluates their
// impedance. It is used to reconstruct model values that the storage document
// format omits, and by the built-in simulation engine.
//
// Grammar: juxtaposition at the top level and inside [...] is a series
// connection, juxtaposition inside (...) is a parallel connection. Elements are
// R (resistor), C (capacitor), L (inductor), W (Warburg, Y) and Q (constant
// phase element, Y and n). Elements of each type are numbered in order of
// appearance: R_1, R_2, C_1, ...
package circuit

import (
	"eiscore/pkg/domain"
	"fmt"
	"math"
	"math/cmplx"
	"strings"
)

// Element is one numbered element of a parsed circuit.
type Element struct {
	Name    string
	Type    byte
	Symbols []string
}

type nodeKind int

const (
	nodeElement nodeKind = iota
	nodeSeries
	nodeParallel
)

type node struct {
	kind     nodeKind
	element  int
	children []*node
}

// Circuit is a parsed CDC.
type Circuit struct {
	code     string
	root     *node
	elements []Element
}

var symbols = map[byte][]string{
	'R': {"R"},
	'C': {"C"},
	'L': {"L"},
	'W': {"Y"},
	'Q': {"Y", "n"},
}

// Parse parses a CDC such as "R(RC)(RQ)".
func Parse(code string) (*Circuit, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("circuit: empty description")
	}
	p := &parser{src: code, counts: map[byte]int{}}
	root, err := p.sequence(0, nodeSeries)
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("circuit: unexpected %q at %d", p.src[p.pos], p.pos)
	}
	return &Circuit{code: code, root: root, elements: p.elements}, nil
}

type parser struct {
	src      string
	pos      int
	counts   map[byte]int
	elements []Element
}

func (p *parser) sequence(closer byte, kind nodeKind) (*node, error) {
	n := &node{kind: kind}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == ' ':
			p.pos++
		case c == closer && closer != 0:
			p.pos++
			if len(n.children) == 0 {
				return nil, fmt.Errorf("circuit: empty group before %d", p.pos-1)
			}
			return n, nil
		case c == '[':
			p.pos++
			child, err := p.sequence(']', nodeSeries)
			if err != nil {
				return nil, err
			}
			n.children = append(n.children, child)
		case c == '(':
			p.pos++
			child, err := p.sequence(')', nodeParallel)
			if err != nil {
				return nil, err
			}
			n.children = append(n.children, child)
		case symbols[c] != nil:
			p.counts[c]++
			p.elements = append(p.elements, Element{
				Name:    fmt.Sprintf("%c_%d", c, p.counts[c]),
				Type:    c,
				Symbols: symbols[c],
			})
			n.children = append(n.children, &node{kind: nodeElement, element: len(p.elements) - 1})
			p.pos++
		default:
			return nil, fmt.Errorf("circuit: unexpected %q at %d", c, p.pos)
		}
	}
	if closer != 0 {
		return nil, fmt.Errorf("circuit: missing %q", closer)
	}
	if len(n.children) == 0 {
		return nil, fmt.Errorf("circuit: no elements")
	}
	return n, nil
}

// Code returns the description the circuit was parsed from.
func (c *Circuit) Code() string { return c.code }

// Elements returns the numbered elements in order of appearance.
func (c *Circuit) Elements() []Element {
	out := make([]Element, len(c.elements))
	copy(out, c.elements)
	return out
}

// Impedances evaluates the circuit at every frequency. Every element symbol
// must have a matching parameter.
func (c *Circuit) Impedances(freqs []float64, params []domain.Parameter) ([]complex128, error) {
	values, err := c.bind(params)
	if err != nil {
		return nil, err
	}
	out := make([]complex128, len(freqs))
	for i, f := range freqs {
		omega := 2 * math.Pi * f
		out[i] = c.eval(c.root, omega, values)
	}
	return out, nil
}

func (c *Circuit) bind(params []domain.Parameter) ([][]float64, error) {
	index := make(map[string]float64, len(params))
	for _, p := range params {
		index[p.Element+"."+p.Symbol] = p.Value
	}
	values := make([][]float64, len(c.elements))
	for i, e := range c.elements {
		values[i] = make([]float64, len(e.Symbols))
		for j, sym := range e.Symbols {
			v, ok := index[e.Name+"."+sym]
			if !ok {
				return nil, fmt.Errorf("circuit %s: missing parameter %s.%s", c.code, e.Name, sym)
			}
			values[i][j] = v
		}
	}
	return values, nil
}

func (c *Circuit) eval(n *node, omega float64, values [][]float64) complex128 {
	switch n.kind {
	case nodeElement:
		return elementImpedance(c.elements[n.element].Type, omega, values[n.element])
	case nodeSeries:
		var z complex128
		for _, child := range n.children {
			z += c.eval(child, omega, values)
		}
		return z
	default:
		var y complex128
		for _, child := range n.children {
			z := c.eval(child, omega, values)
			if z == 0 {
				return 0
			}
			y += 1 / z
		}
		return 1 / y
	}
}

func elementImpedance(t byte, omega float64, v []float64) complex128 {
	jw := complex(0, omega)
	switch t {
	case 'R':
		return complex(v[0], 0)
	case 'C':
		return 1 / (jw * complex(v[0], 0))
	case 'L':
		return jw * complex(v[0], 0)
	case 'W':
		return 1 / (complex(v[0], 0) * cmplx.Sqrt(jw))
	default:
		return 1 / (complex(v[0], 0) * cmplx.Pow(jw, complex(v[1], 0)))
	}
}

// Evaluate parses code and evaluates it in one step.
func Evaluate(code string, params []domain.Parameter, freqs []float64) ([]complex128, error) {
	c, err := Parse(code)
	if err != nil {
		return nil, err
	}
	return c.Impedances(freqs, params)
}
