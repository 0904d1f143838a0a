package frame

// term is the single-byte frame terminator used by every response in this
// protocol. There is no 0x0A; firmware trace output never appears between
// '<' and the terminating 0x0D.
const term = 0x0D

// Parser recognizes GW-USB-xx response frames. It carries no state of its
// own: Parse always restarts at position 0 of whatever candidate frame it is
// handed, so the same Parser can be reused freely across goroutines.
type Parser struct{}

// NewParser returns a ready-to-use Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse classifies the frame starting at buf[0]. It never mutates buf and
// never retains a reference to it. The caller is expected to advance past
// LastPosition+1 bytes on an Ok result and try again for the next frame.
func (p *Parser) Parse(buf []byte) Result {
	return parse(buf)
}

func parse(buf []byte) Result {
	if len(buf) == 0 {
		return Result{Outcome: NotComplete, LastPosition: -1}
	}

	b0 := buf[0]
	if b0 == '>' {
		// Observed firmware bug: the gateway occasionally emits '>' in
		// place of '<' as the very first byte of a response. Tolerated
		// on position 0 only.
		b0 = '<'
	}
	if b0 != '<' {
		return Result{Outcome: BadFormat, LastPosition: 0}
	}
	if len(buf) == 1 {
		return Result{Outcome: NotComplete, LastPosition: 0}
	}

	switch buf[1] {
	case 'E':
		return matchLiteralFrame(buf, 2, "RR", KindError)
	case 'O':
		return matchLiteralFrame(buf, 2, "K", KindTest)
	case 'R':
		return parseResetFamily(buf)
	case 'I':
		return parseInfoFamily(buf)
	case 'B':
		return matchLiteralFrame(buf, 2, ":OK", KindUsbIndicate)
	case 'S':
		return parseSpiStatusBody(buf)
	case 'D':
		return parseDataFamily(buf)
	case 'U':
		return matchLiteralFrame(buf, 2, ":OK", KindSwitchCustom)
	case 'P':
		return parseProgFamily(buf)
	default:
		return Result{Outcome: BadFormat, LastPosition: 1}
	}
}

// parseResetFamily distinguishes "<R:OK\r" from "<RT:OK\r" by the byte
// immediately following 'R', per spec tie-break rules.
func parseResetFamily(buf []byte) Result {
	if len(buf) < 3 {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	switch buf[2] {
	case ':':
		return matchLiteralFrame(buf, 3, "OK", KindResetUsb)
	case 'T':
		return matchLiteralFrame(buf, 3, ":OK", KindResetTr)
	default:
		return Result{Outcome: BadFormat, LastPosition: 2}
	}
}

// parseInfoFamily distinguishes "<I:" (USB info) from "<IT:" (TR info).
func parseInfoFamily(buf []byte) Result {
	if len(buf) < 3 {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	switch buf[2] {
	case ':':
		return parseUsbInfoBody(buf, 3)
	case 'T':
		if len(buf) < 4 {
			return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
		}
		if buf[3] != ':' {
			return Result{Outcome: BadFormat, LastPosition: 3}
		}
		return parseTrInfoBody(buf)
	default:
		return Result{Outcome: BadFormat, LastPosition: 2}
	}
}

// parseUsbInfoBody walks the three '#'-separated ASCII segments of a USB
// info frame. The type segment is opaque; the version segment must be
// digits/'.'; the id segment must be digits or 'A'-'H'.
func parseUsbInfoBody(buf []byte, from int) Result {
	const (
		secType = iota
		secVersion
		secId
	)
	section := secType
	for i := from; i < len(buf); i++ {
		b := buf[i]
		if b == term && section == secId {
			return Result{Outcome: Ok, Kind: KindUsbInfo, LastPosition: i}
		}
		if b == '#' {
			switch section {
			case secType:
				section = secVersion
			case secVersion:
				section = secId
			default:
				return Result{Outcome: BadFormat, LastPosition: i}
			}
			continue
		}
		switch section {
		case secVersion:
			if !isUsbVersionByte(b) {
				return Result{Outcome: BadFormat, LastPosition: i}
			}
		case secId:
			if !isUsbIdByte(b) {
				return Result{Outcome: BadFormat, LastPosition: i}
			}
		}
		// secType accepts any byte: it is treated as opaque type text.
	}
	return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
}

func isUsbVersionByte(b byte) bool {
	return (b >= '0' && b <= '9') || b == '.'
}

func isUsbIdByte(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'A' && b <= 'H')
}

// parseTrInfoBody requires the total frame length (prefix through
// terminator, inclusive) to be exactly 21 or 37 bytes.
func parseTrInfoBody(buf []byte) Result {
	const (
		stdTotal = 21
		extTotal = 37
	)
	switch {
	case len(buf) < stdTotal:
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	case buf[stdTotal-1] == term:
		return Result{Outcome: Ok, Kind: KindTrInfo, LastPosition: stdTotal - 1}
	case len(buf) < extTotal:
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	case buf[extTotal-1] == term:
		return Result{Outcome: Ok, Kind: KindTrInfo, LastPosition: extTotal - 1}
	default:
		return Result{Outcome: BadFormat, LastPosition: extTotal - 1}
	}
}

// parseSpiStatusBody handles "<S:[1 byte]\r".
func parseSpiStatusBody(buf []byte) Result {
	if len(buf) < 3 {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	if buf[2] != ':' {
		return Result{Outcome: BadFormat, LastPosition: 2}
	}
	if len(buf) < 5 {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	if buf[4] != term {
		return Result{Outcome: BadFormat, LastPosition: 4}
	}
	return Result{Outcome: Ok, Kind: KindSpiStatus, LastPosition: 4}
}

// parseDataFamily distinguishes "<DS:" (data-send ack) from "<DR" (async
// inbound data) by the byte following 'D'.
func parseDataFamily(buf []byte) Result {
	if len(buf) < 3 {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	switch buf[2] {
	case 'S':
		return parseDataSendBody(buf)
	case 'R':
		return parseAsyncDataBody(buf)
	default:
		return Result{Outcome: BadFormat, LastPosition: 2}
	}
}

func parseDataSendBody(buf []byte) Result {
	if len(buf) < 4 {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	if buf[3] != ':' {
		return Result{Outcome: BadFormat, LastPosition: 3}
	}
	return matchTokenAlternatives(buf, 4, []string{"OK", "ERR", "BUSY"}, KindDataSend)
}

// parseAsyncDataBody handles "<DR[len byte]:[len bytes payload]\r". The
// byte at offset 3 is the payload length; it is not itself part of any
// literal alternation.
func parseAsyncDataBody(buf []byte) Result {
	if len(buf) < 4 {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	length := int(buf[3])
	if len(buf) < 5 {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	if buf[4] != ':' {
		return Result{Outcome: BadFormat, LastPosition: 4}
	}
	termPos := 5 + length
	if len(buf) <= termPos {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	if buf[termPos] != term {
		return Result{Outcome: BadFormat, LastPosition: termPos}
	}
	return Result{Outcome: Ok, Kind: KindAsyncData, LastPosition: termPos}
}

// parseProgFamily distinguishes "<PE:" / "<PT:" / "<PM:" by the byte
// following 'P'.
func parseProgFamily(buf []byte) Result {
	if len(buf) < 3 {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	switch buf[2] {
	case 'E':
		return parseProgModeToggleBody(buf, 3, KindEnterProgMode)
	case 'T':
		return parseProgModeToggleBody(buf, 3, KindExitProgMode)
	case 'M':
		return parsePmBody(buf, 3)
	default:
		return Result{Outcome: BadFormat, LastPosition: 2}
	}
}

func parseProgModeToggleBody(buf []byte, from int, kind MessageKind) Result {
	if from >= len(buf) {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	if buf[from] != ':' {
		return Result{Outcome: BadFormat, LastPosition: from}
	}
	return matchTokenAlternatives(buf, from+1, []string{"OK", "ERR1"}, kind)
}

// parsePmBody implements the ambiguous "<PM:" response: the same 2-byte
// header precedes either a textual status token or an opaque binary
// payload whose length is not self-describing. Disambiguation is purely by
// total frame length: 7 or 9 bytes means a status token, anything else
// means download data. This accepts any other length as download data to
// tolerate firmware growth, per the documented rationale — if the firmware
// ever emits a genuine 7- or 9-byte download payload it will be
// misclassified as a status token; this is a known, intentional limitation
// and not a bug in this parser.
func parsePmBody(buf []byte, from int) Result {
	if from >= len(buf) {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	if buf[from] != ':' {
		return Result{Outcome: BadFormat, LastPosition: from}
	}
	bodyStart := from + 1

	termPos := -1
	for i := bodyStart; i < len(buf); i++ {
		if buf[i] == term {
			termPos = i
			break
		}
	}
	if termPos < 0 {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}

	total := termPos + 1
	if total == 7 || total == 9 {
		return matchPmStatusToken(buf, bodyStart)
	}
	return Result{Outcome: Ok, Kind: KindProgMemDownloadData, LastPosition: termPos}
}

func matchPmStatusToken(buf []byte, from int) Result {
	if from >= len(buf) {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	switch buf[from] {
	case 'O':
		return matchLiteralFrame(buf, from, "OK", KindProgMemResp)
	case 'B':
		return matchLiteralFrame(buf, from, "BUSY", KindProgMemResp)
	case 'E':
		end, outcome := matchLiteral(buf, from, "ERR")
		if outcome != Ok {
			if outcome == NotComplete {
				return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
			}
			return Result{Outcome: BadFormat, LastPosition: end}
		}
		if end >= len(buf) {
			return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
		}
		digit := buf[end]
		if digit < '2' || digit > '7' {
			return Result{Outcome: BadFormat, LastPosition: end}
		}
		return matchTerminator(buf, end+1, KindProgMemResp)
	default:
		return Result{Outcome: BadFormat, LastPosition: from}
	}
}

// matchTokenAlternatives picks among literal candidates that are
// distinguishable by their first byte (true for every alternation this
// grammar uses outside the PM "ERRn" family, which matchPmStatusToken
// handles directly).
func matchTokenAlternatives(buf []byte, from int, tokens []string, kind MessageKind) Result {
	if from >= len(buf) {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	for _, tok := range tokens {
		if buf[from] == tok[0] {
			return matchLiteralFrame(buf, from, tok, kind)
		}
	}
	return Result{Outcome: BadFormat, LastPosition: from}
}

// matchLiteralFrame expects buf[from:] to equal lit followed immediately
// by the frame terminator.
func matchLiteralFrame(buf []byte, from int, lit string, kind MessageKind) Result {
	pos, outcome := matchLiteral(buf, from, lit)
	if outcome != Ok {
		if outcome == NotComplete {
			return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
		}
		return Result{Outcome: BadFormat, LastPosition: pos}
	}
	return matchTerminator(buf, pos, kind)
}

// matchLiteral compares buf[from:] against lit byte by byte. A short
// buffer is NotComplete; any mismatch is BadFormat.
func matchLiteral(buf []byte, from int, lit string) (pos int, outcome Outcome) {
	for i := 0; i < len(lit); i++ {
		p := from + i
		if p >= len(buf) {
			return p, NotComplete
		}
		if buf[p] != lit[i] {
			return p, BadFormat
		}
	}
	return from + len(lit), Ok
}

func matchTerminator(buf []byte, pos int, kind MessageKind) Result {
	if pos >= len(buf) {
		return Result{Outcome: NotComplete, LastPosition: len(buf) - 1}
	}
	if buf[pos] != term {
		return Result{Outcome: BadFormat, LastPosition: pos}
	}
	return Result{Outcome: Ok, Kind: kind, LastPosition: pos}
}
