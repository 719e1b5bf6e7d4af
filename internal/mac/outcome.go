package mac

import "fmt"

// Outcome is the result code of one wait/receive phase. None of these are errors.
type Outcome uint8

const (
	Success Outcome = iota
	// PacketCorrupt means something arrived that the transport could not decode.
	PacketCorrupt

	RTSWrong
	RTSTimeout

	CTSWrong
	CTSNotDest
	CTSTimeout

	ACKWrong
	ACKTimeout

	MsgTimeout
	MsgWrong
	MsgUncleared
)

var outcomeNames = [...]string{
	Success:       "SUCCESS",
	PacketCorrupt: "PACKET_CORRUPT",
	RTSWrong:      "RTS_WRONG",
	RTSTimeout:    "RTS_TIMEOUT",
	CTSWrong:      "CTS_WRONG",
	CTSNotDest:    "CTS_NOT_DEST",
	CTSTimeout:    "CTS_TIMEOUT",
	ACKWrong:      "ACK_WRONG",
	ACKTimeout:    "ACK_TIMEOUT",
	MsgTimeout:    "MSG_TIMEOUT",
	MsgWrong:      "MSG_WRONG",
	MsgUncleared:  "MSG_UNCLEARED",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("OUTCOME(%d)", uint8(o))
}

func (o Outcome) Timeout() bool {
	switch o {
	case RTSTimeout, CTSTimeout, ACKTimeout, MsgTimeout:
		return true
	}
	return false
}

func (o Outcome) Malformed() bool {
	switch o {
	case PacketCorrupt, RTSWrong, CTSWrong, ACKWrong, MsgWrong:
		return true
	}
	return false
}

// Busy reports a channel-reserved signal the caller should back off on.
// A responder's RTS_WRONG usually means it overheard someone else's CTS.
func (o Outcome) Busy() bool {
	return o == CTSNotDest || o == RTSWrong
}
