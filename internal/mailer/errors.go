package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// Kind tags a mail session failure. The reconciliation cycle branches on
// kind: KindSend is survivable (messages may have partially gone out), every
// other kind aborts the tick before marking.
type Kind int

const (
	KindConnect Kind = iota
	KindLogin
	KindSend
	KindTimeout
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindLogin:
		return "login"
	case KindSend:
		return "send"
	case KindTimeout:
		return "timeout"
	default:
		return "other"
	}
}

// Error is the single tagged error a Send call can fail with.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mailer: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("mailer: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the error kind. Unknown errors report as KindOther.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindOther
}

// classify wraps err with the stage's kind, upgrading to KindTimeout when the
// underlying failure is a deadline.
func classify(op string, kind Kind, err error) *Error {
	if isTimeout(err) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err)
}
