package domain

import (
	"path/filepath"
	"strconv"
	"strings"
)

// unitSuffix is appended to the rendered value of these keys.
var unitSuffix = map[string]string{
	OptFrameRate:  "fps",
	OptBitRate:    "bps",
	OptHeight:     "h",
	OptWidth:      "w",
	OptTimeInSecs: "s",
}

// excludedFromName lists keys that never contribute a name token.
var excludedFromName = map[string]bool{
	OptFileSuffix:  true,
	OptSharpen:     true,
	OptAspectRatio: true,
}

// DerivativeName computes the deterministic output filename for a source
// and a fully resolved option set:
//
//	<base>[_<token>...]<fileSuffix>
//
// Tokens follow Options.Keys order. Width and height only contribute when
// both are set, since scaling is skipped otherwise. letterboxColor only
// contributes when it colours letterbox padding. timeInSecs renders the
// whole seconds the still is taken at.
func DerivativeName(sourcePath string, opts Options) string {
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var sb strings.Builder
	sb.WriteString(sanitizeToken(base))

	scaled := opts.Scaled()
	for _, key := range opts.Keys() {
		if excludedFromName[key] {
			continue
		}
		if (key == OptWidth || key == OptHeight) && !scaled {
			continue
		}
		if key == OptLetterboxColor && !(scaled && opts.Aspect() == AspectLetterbox) {
			continue
		}
		if key == OptTimeInSecs {
			if secs, ok := opts.Seconds(key); ok && secs > 0 {
				sb.WriteString("_" + strconv.Itoa(secs) + unitSuffix[key])
			}
			continue
		}
		token, ok := nameToken(key, opts[key])
		if !ok {
			continue
		}
		sb.WriteByte('_')
		sb.WriteString(sanitizeToken(token))
	}

	sb.WriteString(sanitizeToken(opts.String(OptFileSuffix)))
	return sb.String()
}

func nameToken(key string, v any) (string, bool) {
	if b, ok := v.(bool); ok {
		if b {
			return key, true
		}
		return "no" + key, true
	}
	if IsEmptyValue(v) {
		return "", false
	}
	return FormatValue(v) + unitSuffix[key], true
}

// sanitizeToken keeps rendered values from escaping the output directory.
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r < 32 || r == 127 {
			return '_'
		}
		return r
	}, s)
}
