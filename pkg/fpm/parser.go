package fpm

// Parser assembles frames from a byte stream. Bytes ahead of a start
// marker are skipped. Markers and checksum are not validated beyond the
// leading start marker, use Decode on the result.
type Parser struct {
	state   parseState
	frame   [FrameSize]byte
	recvLen byte
}

// ParseState indicates where the parser is within a frame.
type ParseState int

const (
	// ParseIdle means the parser is waiting for a start marker.
	ParseIdle ParseState = iota
	// ParseReceiving means a frame is partially received.
	ParseReceiving
)

// ParseResult is the result after one parsing step.
type ParseResult struct {
	State ParseState
	// Skipped is set when the byte was discarded looking for a start marker.
	Skipped bool
	// Frame is a complete frame, or nil.
	Frame []byte
}

type parseState int

const (
	stateStart parseState = iota // waiting for FrameStart
	stateBody                    // receiving the rest of a frame
)

// State gets the current parse state.
func (p *Parser) State() ParseState {
	if p.state == stateBody {
		return ParseReceiving
	}
	return ParseIdle
}

// Reset drops a partially received frame.
func (p *Parser) Reset() {
	p.state, p.recvLen = stateStart, 0
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	switch p.state {
	case stateStart:
		if b != FrameStart {
			pr.Skipped = true
			break
		}
		p.frame[0], p.recvLen = b, 1
		p.state = stateBody
	case stateBody:
		p.frame[p.recvLen] = b
		p.recvLen++
		if p.recvLen >= FrameSize {
			pr.Frame = append([]byte(nil), p.frame[:]...)
			p.Reset()
		}
	}
	pr.State = p.State()
	return
}

// Feed consumes a chunk of bytes and returns the complete frames.
func (p *Parser) Feed(data []byte) (frames [][]byte, skipped int) {
	for _, b := range data {
		pr := p.Parse(b)
		if pr.Skipped {
			skipped++
		}
		if pr.Frame != nil {
			frames = append(frames, pr.Frame)
		}
	}
	return
}
