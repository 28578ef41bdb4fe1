package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type Kind string

const (
	KindVideo     Kind = "video"
	KindThumbnail Kind = "thumbnail"
)

func (k Kind) Valid() bool {
	return k == KindVideo || k == KindThumbnail
}

// Recognized option keys. Unknown keys are carried through untouched and
// still take part in naming.
const (
	OptFrameRate      = "frameRate"
	OptBitRate        = "bitRate"
	OptWidth          = "width"
	OptHeight         = "height"
	OptTimeInSecs     = "timeInSecs"
	OptAspectRatio    = "aspectRatio"
	OptLetterboxColor = "letterboxColor"
	OptSharpen        = "sharpen"
	OptFileSuffix     = "fileSuffix"
)

type AspectMode string

const (
	AspectLetterbox AspectMode = "letterbox"
	AspectCrop      AspectMode = "crop"
	AspectNone      AspectMode = "none"
)

// Options maps option names to values. Values are strings, integers,
// floats, booleans or nil, as produced by JSON decoding or query parsing.
type Options map[string]any

// Merge returns a new Options with overrides layered on top of o.
func (o Options) Merge(overrides Options) Options {
	merged := make(Options, len(o)+len(overrides))
	for k, v := range o {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// Clone returns a shallow copy.
func (o Options) Clone() Options {
	return Options{}.Merge(o)
}

// IsSet reports whether key holds a non-empty value. Booleans count as set
// only when true.
func (o Options) IsSet(key string) bool {
	v, ok := o[key]
	if !ok {
		return false
	}
	return !IsEmptyValue(v)
}

// String renders the value for key, or "" when absent.
func (o Options) String(key string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return ""
	}
	return FormatValue(v)
}

// Int returns the integral value for key. Strings holding integers are
// accepted; anything else yields ok=false.
func (o Options) Int(key string) (int, bool) {
	switch v := o[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Seconds returns key as whole seconds. Fractions are truncated, so 5.9
// seeks to second 5. Non-numeric values yield ok=false.
func (o Options) Seconds(key string) (int, bool) {
	var f float64
	switch v := o[key].(type) {
	case float64:
		f = v
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return o.Int(key)
	}
	if math.IsNaN(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(math.Trunc(f)), true
}

// Aspect normalizes the aspectRatio option. Unknown or absent values map
// to AspectNone.
func (o Options) Aspect() AspectMode {
	switch AspectMode(o.String(OptAspectRatio)) {
	case AspectLetterbox:
		return AspectLetterbox
	case AspectCrop:
		return AspectCrop
	default:
		return AspectNone
	}
}

// Scaled reports whether both output dimensions were requested.
func (o Options) Scaled() bool {
	return o.IsSet(OptWidth) && o.IsSet(OptHeight)
}

// canonicalOrder fixes token order in derivative names. Keys not listed
// here follow in lexicographic order.
var canonicalOrder = []string{
	OptFrameRate,
	OptBitRate,
	OptWidth,
	OptHeight,
	OptTimeInSecs,
}

// Keys returns the option keys in canonical order.
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o))
	known := make(map[string]bool, len(canonicalOrder))
	for _, k := range canonicalOrder {
		known[k] = true
		if _, ok := o[k]; ok {
			keys = append(keys, k)
		}
	}

	var rest []string
	for k := range o {
		if !known[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// IsEmptyValue reports whether v means "not requested": nil, false, the
// empty string, "0" and numeric zero.
func IsEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return x == "" || x == "0"
	case int:
		return x == 0
	case int64:
		return x == 0
	case float64:
		return x == 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 0
	default:
		return false
	}
}

// FormatValue renders an option value the way it appears in names and
// encoder arguments.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// ParseOptions decodes a JSON object into Options. Numbers that are whole
// decode as int.
func ParseOptions(data []byte) (Options, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}

	opts := make(Options, len(raw))
	for k, v := range raw {
		opts[k] = normalizeNumber(v)
	}
	return opts, nil
}

func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// ParseValue interprets a textual option value, as found in query strings.
func ParseValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return s
}
