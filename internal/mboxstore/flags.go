package mboxstore

import (
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/textproto"
)

// X-Status letters and the system flags they stand for.
var xStatus = []struct {
	letter byte
	flag   string
}{
	{'A', imap.AnsweredFlag},
	{'F', imap.FlaggedFlag},
	{'T', imap.DraftFlag},
	{'D', imap.DeletedFlag},
}

func flagsFromHeader(h textproto.Header) []string {
	var flags []string
	if strings.Contains(h.Get("Status"), "R") {
		flags = append(flags, imap.SeenFlag)
	}
	xs := h.Get("X-Status")
	for _, x := range xStatus {
		if strings.IndexByte(xs, x.letter) >= 0 {
			flags = append(flags, x.flag)
		}
	}
	for _, kw := range strings.FieldsFunc(h.Get("X-Keywords"), func(r rune) bool {
		return r == ' ' || r == ','
	}) {
		flags = append(flags, kw)
	}
	return flags
}

// statusFields renders flags as header lines to prepend to a message.
func statusFields(flags []string, eol string) []byte {
	var status, xs string
	var keywords []string
	for _, f := range flags {
		switch imap.CanonicalFlag(f) {
		case imap.SeenFlag:
			status = "RO"
		case imap.AnsweredFlag:
			xs += "A"
		case imap.FlaggedFlag:
			xs += "F"
		case imap.DraftFlag:
			xs += "T"
		case imap.DeletedFlag:
			xs += "D"
		case imap.RecentFlag:
		default:
			if !strings.HasPrefix(f, `\`) {
				keywords = append(keywords, f)
			}
		}
	}
	if status == "" {
		status = "O"
	}
	var b strings.Builder
	b.WriteString("Status: " + status + eol)
	if xs != "" {
		b.WriteString("X-Status: " + xs + eol)
	}
	if len(keywords) > 0 {
		b.WriteString("X-Keywords: " + strings.Join(keywords, ", ") + eol)
	}
	return []byte(b.String())
}
