package generate

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/snow-ghost/probe/core"
)

// Rule is one entry of the heuristic table: the first rule whose Match
// accepts a parameter produces its value.
type Rule struct {
	Name     string
	Match    func(f features) bool
	Generate func(r core.RandSource, f features) any
}

var (
	firstNames = []string{"Alice", "Bob", "Carol", "Dave", "Erin", "Frank", "Grace", "Heidi", "Ivan", "Judy"}
	lastNames  = []string{"Smith", "Johnson", "Lee", "Garcia", "Brown", "Miller", "Davis", "Wilson"}
	words      = []string{"quick", "brown", "fox", "lazy", "dog", "river", "stone", "light", "paper", "window", "garden", "music"}
	domains    = []string{"example.com", "example.org", "test.io"}
)

// DefaultRules is the built-in heuristic table in priority order.
var DefaultRules []Rule

// The table is assigned in init because the collection rule recurses through it.
func init() {
	DefaultRules = []Rule{
		{
			Name: "boolean",
			Match: func(f features) bool {
				if f.hint.shape == shapeBool {
					return true
				}
				return (f.hint.shape == shapeAny) && len(f.words) > 1 && oneOf(f.first(), "is", "has", "can", "should", "allow", "enable")
			},
			Generate: func(r core.RandSource, f features) any { return r.Intn(2) == 1 },
		},
		{
			Name:  "email",
			Match: stringRule("email", "mail"),
			Generate: func(r core.RandSource, f features) any {
				return fmt.Sprintf("%s%d@%s", strings.ToLower(pick(r, firstNames)), r.Intn(100), pick(r, domains))
			},
		},
		{
			Name:     "age",
			Match:    numberRule("age"),
			Generate: func(r core.RandSource, f features) any { return number(r, f, 18, 90) },
		},
		{
			Name:     "latitude",
			Match:    numberRule("latitude", "lat"),
			Generate: func(r core.RandSource, f features) any { return number(r, f, -90, 90) },
		},
		{
			Name:     "longitude",
			Match:    numberRule("longitude", "lng", "lon", "long"),
			Generate: func(r core.RandSource, f features) any { return number(r, f, -180, 180) },
		},
		{
			Name:     "percentage",
			Match:    numberRule("percentage", "percent", "pct", "ratio"),
			Generate: func(r core.RandSource, f features) any { return number(r, f, 0, 100) },
		},
		{
			Name:     "money",
			Match:    numberRule("price", "amount", "balance", "salary", "cost", "deposit", "withdrawal", "total"),
			Generate: func(r core.RandSource, f features) any { return number(r, f, 1, 1000) },
		},
		{
			Name:  "url",
			Match: stringRule("url", "link", "uri", "website", "href"),
			Generate: func(r core.RandSource, f features) any {
				return fmt.Sprintf("https://%s/%s", pick(r, domains), pick(r, words))
			},
		},
		{
			Name:  "phone",
			Match: stringRule("phone", "mobile", "tel"),
			Generate: func(r core.RandSource, f features) any {
				return fmt.Sprintf("555%07d", r.Intn(10_000_000))
			},
		},
		{
			Name:  "name",
			Match: stringRule("name", "first", "last", "username", "user", "author", "owner", "person"),
			Generate: func(r core.RandSource, f features) any {
				switch {
				case f.has("last", "surname"):
					return pick(r, lastNames)
				case f.has("username", "user"):
					return fmt.Sprintf("%s%d", strings.ToLower(pick(r, firstNames)), r.Intn(1000))
				case f.has("full"):
					return pick(r, firstNames) + " " + pick(r, lastNames)
				}
				return pick(r, firstNames)
			},
		},
		{
			Name:     "text",
			Match:    stringRule("text", "message", "sentence", "description", "content", "body", "comment", "greeting", "title"),
			Generate: func(r core.RandSource, f features) any { return sentence(r) },
		},
		{
			Name: "count",
			Match: func(f features) bool {
				if f.hint.shape != shapeInt && f.hint.shape != shapeUint {
					return false
				}
				return f.param.Name == "n" || oneOf(f.last(), "count", "size", "num", "number", "index", "idx", "length", "len", "times", "limit", "precision")
			},
			Generate: func(r core.RandSource, f features) any { return 1 + r.Intn(10) },
		},
		{
			// untyped operands such as a, b, x or value
			Name: "operand",
			Match: func(f features) bool {
				if f.hint.shape != shapeAny || f.plural {
					return false
				}
				return len(f.param.Name) <= 2 || oneOf(f.last(), "value", "num", "number", "operand")
			},
			Generate: func(r core.RandSource, f features) any { return r.Intn(101) },
		},
		{
			Name:     "dimension",
			Match:    numberRule("width", "height", "length", "weight", "radius", "depth", "distance", "side", "base"),
			Generate: func(r core.RandSource, f features) any { return number(r, f, 1, 100) },
		},
		{
			Name:     "temperature",
			Match:    numberRule("temperature", "temp", "celsius", "fahrenheit"),
			Generate: func(r core.RandSource, f features) any { return number(r, f, -30, 45) },
		},
		{
			Name: "id",
			Match: func(f features) bool {
				if !oneOf(f.last(), "id", "uuid", "guid") {
					return false
				}
				return f.hint.numeric() || f.hint.shape == shapeString || f.hint.shape == shapeAny
			},
			Generate: func(r core.RandSource, f features) any {
				if f.hint.numeric() {
					lo, hi := f.hint.intRange(1, 10_000)
					return lo + r.Intn(hi-lo+1)
				}
				return seededUUID(r)
			},
		},
		{
			Name: "collection",
			Match: func(f features) bool {
				return f.hint.shape == shapeSlice || (f.hint.shape == shapeAny && f.plural)
			},
			Generate: func(r core.RandSource, f features) any {
				elem := core.Parameter{Name: singular(f.param.Name), TypeHint: f.hint.elem}
				n := 3 + r.Intn(3)
				out := make([]any, n)
				for i := range out {
					out[i] = heuristicValue(r, elem)
				}
				return out
			},
		},
	}
}

// fallback fills parameters no rule claims, by type hint alone.
func fallback(r core.RandSource, f features) any {
	switch f.hint.shape {
	case shapeString, shapeAny:
		return "sample_" + f.param.Name
	case shapeInt, shapeUint:
		return r.Intn(101)
	case shapeFloat:
		return round2(r.Float64() * 100)
	case shapeBool:
		return r.Intn(2) == 1
	case shapeMap:
		key := heuristicValue(r, core.Parameter{Name: "key", TypeHint: f.hint.key})
		val := heuristicValue(r, core.Parameter{Name: "value", TypeHint: f.hint.elem})
		return map[string]any{fmt.Sprint(key): val}
	}
	if f.param.HasDefault {
		return f.param.Default
	}
	return nil
}

// heuristicValue runs the default table for p.
func heuristicValue(r core.RandSource, p core.Parameter) any {
	f := newFeatures(p)
	for _, rule := range DefaultRules {
		if rule.Match(f) {
			return rule.Generate(r, f)
		}
	}
	return fallback(r, f)
}

func stringRule(names ...string) func(f features) bool {
	return func(f features) bool {
		if f.hint.shape != shapeString && f.hint.shape != shapeAny {
			return false
		}
		return !f.plural && f.has(names...)
	}
}

func numberRule(names ...string) func(f features) bool {
	return func(f features) bool {
		if !f.hint.numeric() && f.hint.shape != shapeAny {
			return false
		}
		return !f.plural && f.has(names...)
	}
}

// number draws from [lo, hi]: an int for integer hints, else a float with two
// decimals. Integer ranges are narrowed to what the hinted type holds.
func number(r core.RandSource, f features, lo, hi int) any {
	switch f.hint.shape {
	case shapeInt, shapeUint:
		lo, hi = f.hint.intRange(lo, hi)
		return lo + r.Intn(hi-lo+1)
	}
	return round2(float64(lo) + r.Float64()*float64(hi-lo))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func pick(r core.RandSource, from []string) string {
	return from[r.Intn(len(from))]
}

func sentence(r core.RandSource) string {
	n := 3 + r.Intn(5)
	parts := make([]string, n)
	for i := range parts {
		parts[i] = pick(r, words)
	}
	s := strings.Join(parts, " ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

// seededUUID builds a version 4 UUID from the random stream so ids stay reproducible.
func seededUUID(r core.RandSource) string {
	var b [16]byte
	for i := 0; i < len(b); i += 8 {
		v := r.Int63()
		for j := 0; j < 8; j++ {
			b[i+j] = byte(v >> (8 * j))
		}
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return uuid.UUID(b).String()
}

func oneOf(s string, set ...string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
