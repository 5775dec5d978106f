package pop3

// Message is the client-side record of one server-reported mailbox entry.
//
// Seq and Size are assigned by List and never change for the lifetime of the
// session. UID is filled only by a UIDL exchange. RawHeader and RawBody
// accumulate the wire text of TOP and RETR replies: repeated retrievals
// append, they do not replace. Lines are stored exactly as received,
// including CRLF terminators and any leading-dot escapes the server applied.
type Message struct {
	Seq  int
	Size int
	UID  string

	Retrieved bool
	RawHeader []byte
	RawBody   []byte
}
