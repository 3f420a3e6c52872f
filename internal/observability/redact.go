package observability

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap/zapcore"
)

// Redacted replaces the value of secret-bearing fields.
const Redacted = "[REDACTED]"

var (
	secretKeys   = map[string]bool{"secret": true, "password": true, "passwd": true, "pwd": true, "token": true, "cookie": true}
	identityKeys = map[string]bool{"identity": true, "account": true, "username": true, "phone": true, "email": true}
)

type redactingCore struct {
	zapcore.Core
}

// Redacting wraps core so string fields keyed like a credential never reach
// a sink: secrets are replaced by Redacted and identities are masked with
// MaskIdentity. Components still mask at the call site; this catches the
// field that slips through.
func Redacting(core zapcore.Core) zapcore.Core {
	return redactingCore{Core: core}
}

func (c redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return redactingCore{Core: c.Core.With(redactFields(fields))}
}

func (c redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if f.Type != zapcore.StringType {
			continue
		}
		key := strings.ToLower(f.Key)
		var v string
		switch {
		case secretKeys[key]:
			v = Redacted
		case identityKeys[key]:
			v = MaskIdentity(f.String)
		default:
			continue
		}
		if out == nil {
			out = append([]zapcore.Field(nil), fields...)
		}
		out[i].String = v
	}
	if out == nil {
		return fields
	}
	return out
}

// MaskIdentity renders an account identity in a form safe for logs.
// "writer@example.com" becomes "wr****@example.com"; phone numbers keep the last two digits.
func MaskIdentity(identity string) string {
	if identity == "" {
		return ""
	}
	local, domain, hasDomain := strings.Cut(identity, "@")
	runes := []rune(local)
	n := utf8.RuneCountInString(local)

	switch {
	case hasDomain && n > 2:
		return string(runes[:2]) + "****@" + domain
	case hasDomain:
		return "****@" + domain
	case n > 4:
		return strings.Repeat("*", n-2) + string(runes[n-2:])
	default:
		return "****"
	}
}
