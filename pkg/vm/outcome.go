package vm

import (
	"fmt"
	"strings"

	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/filecoin-project/venus-ledger/pkg/ledger"
)

// Reason says why a message was rejected.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonInsufficientFunds
	ReasonOverflow
	ReasonUnauthorized
	ReasonMalformed
	ReasonUnknownMessage
)

var reasonNames = map[Reason]string{
	ReasonNone:              "none",
	ReasonInsufficientFunds: "insufficient funds",
	ReasonOverflow:          "overflow",
	ReasonUnauthorized:      "unauthorized",
	ReasonMalformed:         "malformed message",
	ReasonUnknownMessage:    "unknown message",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// ExitCode maps the reason onto the filecoin exit code space.
func (r Reason) ExitCode() exitcode.ExitCode {
	switch r {
	case ReasonNone:
		return exitcode.Ok
	case ReasonInsufficientFunds:
		return exitcode.ErrInsufficientFunds
	case ReasonOverflow:
		return exitcode.ErrIllegalArgument
	case ReasonUnauthorized:
		return exitcode.ErrForbidden
	case ReasonMalformed:
		return exitcode.ErrSerialization
	default:
		return exitcode.SysErrInvalidMethod
	}
}

// Outcome is the receipt of one applied message.
type Outcome struct {
	ExitCode exitcode.ExitCode
	Reason   Reason
	// Effects lists what changed, in order. Empty when rejected.
	Effects []ledger.Event
	// AtIndex is the failing position inside a batch, -1 otherwise.
	AtIndex int
	// Err carries detail for logs. It is nil when applied.
	Err error
}

// Applied reports whether the message took effect.
func (o Outcome) Applied() bool {
	return o.Reason == ReasonNone
}

func (o Outcome) String() string {
	if o.Applied() {
		effects := make([]string, 0, len(o.Effects))
		for _, e := range o.Effects {
			effects = append(effects, e.String())
		}
		return fmt.Sprintf("applied: %s", strings.Join(effects, "; "))
	}
	if o.AtIndex >= 0 {
		return fmt.Sprintf("rejected (exit %d): %s at index %d", o.ExitCode, o.Reason, o.AtIndex)
	}
	return fmt.Sprintf("rejected (exit %d): %s", o.ExitCode, o.Reason)
}

func applied(effects ...ledger.Event) Outcome {
	return Outcome{ExitCode: exitcode.Ok, Effects: effects, AtIndex: -1}
}

func rejected(reason Reason, err error) Outcome {
	return Outcome{ExitCode: reason.ExitCode(), Reason: reason, AtIndex: -1, Err: err}
}
