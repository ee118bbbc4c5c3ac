package generate

import (
	"math"
	"strings"

	"github.com/go-openapi/swag"

	"github.com/snow-ghost/probe/core"
)

// shape is the coarse value category a type hint asks for.
type shape int

const (
	shapeAny shape = iota
	shapeBool
	shapeInt
	shapeUint
	shapeFloat
	shapeString
	shapeSlice
	shapeMap
	shapeOther
)

var builtinShapes = map[string]shape{
	"bool":        shapeBool,
	"int":         shapeInt,
	"int8":        shapeInt,
	"int16":       shapeInt,
	"int32":       shapeInt,
	"int64":       shapeInt,
	"rune":        shapeInt,
	"i32":         shapeInt,
	"i64":         shapeInt,
	"uint":        shapeUint,
	"uint8":       shapeUint,
	"uint16":      shapeUint,
	"uint32":      shapeUint,
	"uint64":      shapeUint,
	"uintptr":     shapeUint,
	"byte":        shapeUint,
	"float32":     shapeFloat,
	"float64":     shapeFloat,
	"f32":         shapeFloat,
	"f64":         shapeFloat,
	"string":      shapeString,
	"":            shapeAny,
	"any":         shapeAny,
	"interface{}": shapeAny,
}

// intBits are the widths of the sized integer hints; the rest hold 64 bits.
var intBits = map[string]int{
	"int8":   8,
	"int16":  16,
	"int32":  32,
	"rune":   32,
	"i32":    32,
	"uint8":  8,
	"byte":   8,
	"uint16": 16,
	"uint32": 32,
}

// hint is a parsed type hint.
type hint struct {
	shape shape
	bits  int    // width of sized integers, 0 when unbounded
	elem  string // element type of slices and maps
	key   string // key type of maps
}

func builtinHint(s string) (hint, bool) {
	sh, ok := builtinShapes[s]
	if !ok {
		return hint{}, false
	}
	return hint{shape: sh, bits: intBits[s]}, true
}

func parseHint(s string) hint {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "..."):
		return hint{shape: shapeSlice, elem: s[3:]}
	case strings.HasPrefix(s, "[]"):
		return hint{shape: shapeSlice, elem: s[2:]}
	case strings.HasPrefix(s, "map["):
		if k, v, ok := splitMap(s); ok {
			return hint{shape: shapeMap, key: k, elem: v}
		}
		return hint{shape: shapeOther}
	case strings.HasPrefix(s, "*"):
		// pointers to builtins are filled like their element
		if h, ok := builtinHint(s[1:]); ok && h.shape != shapeAny {
			return h
		}
		return hint{shape: shapeOther}
	}
	if h, ok := builtinHint(s); ok {
		return h
	}
	if strings.HasPrefix(s, "interface {") || strings.HasPrefix(s, "interface{") {
		return hint{shape: shapeAny}
	}
	return hint{shape: shapeOther}
}

// splitMap splits "map[K]V" respecting nested brackets in K.
func splitMap(s string) (string, string, bool) {
	depth := 0
	for i := len("map["); i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			if depth == 0 {
				return s[len("map["):i], s[i+1:], true
			}
			depth--
		}
	}
	return "", "", false
}

func (h hint) numeric() bool {
	return h.shape == shapeInt || h.shape == shapeUint || h.shape == shapeFloat
}

// intBounds is the range an integer hint can hold.
func (h hint) intBounds() (int64, int64) {
	switch {
	case h.shape == shapeUint && h.bits > 0:
		return 0, 1<<h.bits - 1
	case h.shape == shapeUint:
		return 0, math.MaxInt64
	case h.bits > 0:
		return -1 << (h.bits - 1), 1<<(h.bits-1) - 1
	}
	return math.MinInt64, math.MaxInt64
}

// intRange narrows [lo, hi] to the bounds of the hinted integer type.
func (h hint) intRange(lo, hi int) (int, int) {
	minV, maxV := h.intBounds()
	lo = int(max(min(int64(lo), maxV), minV))
	hi = int(max(min(int64(hi), maxV), minV))
	return lo, max(lo, hi)
}

// accepts reports whether v, a normalized JSON-shaped value, fits the hint.
func (h hint) accepts(v any) bool {
	switch h.shape {
	case shapeAny, shapeOther:
		return true
	case shapeBool:
		_, ok := v.(bool)
		return ok
	case shapeInt, shapeUint:
		n, ok := core.AsInt64(v)
		if !ok {
			return false
		}
		lo, hi := h.intBounds()
		return n >= lo && n <= hi
	case shapeFloat:
		_, ok := core.AsFloat64(v)
		return ok
	case shapeString:
		_, ok := v.(string)
		return ok
	case shapeSlice:
		items, ok := v.([]any)
		if !ok {
			return false
		}
		elem := parseHint(h.elem)
		for _, it := range items {
			if !elem.accepts(it) {
				return false
			}
		}
		return true
	case shapeMap:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}

// features is what the rules look at: the parameter, its name split into
// lower-case words and its parsed hint.
type features struct {
	param  core.Parameter
	words  []string
	hint   hint
	plural bool
}

func newFeatures(p core.Parameter) features {
	words := nameWords(p.Name)
	f := features{param: p, words: words, hint: parseHint(p.TypeHint)}
	if n := len(words); n > 0 {
		f.plural = isPlural(words[n-1])
	}
	return f
}

// nameWords splits camelCase and snake_case identifiers: "firstName" and
// "first_name" both give [first name], "userID" gives [user id].
func nameWords(name string) []string {
	snake := swag.ToFileName(name)
	var out []string
	for _, w := range strings.Split(snake, "_") {
		if w != "" {
			out = append(out, strings.ToLower(w))
		}
	}
	return out
}

func (f features) has(words ...string) bool {
	for _, w := range f.words {
		for _, want := range words {
			if w == want {
				return true
			}
		}
	}
	return false
}

func (f features) first() string {
	if len(f.words) == 0 {
		return ""
	}
	return f.words[0]
}

func (f features) last() string {
	if len(f.words) == 0 {
		return ""
	}
	return f.words[len(f.words)-1]
}

func isPlural(w string) bool {
	if len(w) < 4 || !strings.HasSuffix(w, "s") {
		return false
	}
	for _, suffix := range []string{"ss", "us", "is"} {
		if strings.HasSuffix(w, suffix) {
			return false
		}
	}
	return true
}

// singular turns a plural parameter name into an element name: "emails" -> "email".
func singular(name string) string {
	switch {
	case strings.HasSuffix(name, "ies") && len(name) > 3:
		return name[:len(name)-3] + "y"
	case strings.HasSuffix(name, "ses") || strings.HasSuffix(name, "xes"):
		return name[:len(name)-2]
	case strings.HasSuffix(name, "s"):
		return name[:len(name)-1]
	}
	return name
}
