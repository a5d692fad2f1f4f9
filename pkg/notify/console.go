package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// ExplorerTxURL is the default transaction link prefix
const ExplorerTxURL = "https://solscan.io/tx/"

// Console prints notifications for a terminal user
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	explorer string
}

// NewConsole creates a new console sink writing to out (color.Output when nil)
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = color.Output
	}
	return &Console{out: out, explorer: ExplorerTxURL}
}

// Notify writes one event
func (c *Console) Notify(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := ""
	if ev.SessionID != 0 {
		prefix = fmt.Sprintf("[#%d] ", ev.SessionID)
	}

	switch ev.Kind {
	case KindSubmitted:
		color.New(color.FgCyan).Fprintf(c.out, "%sTransaction sent. Waiting for confirmation...\n", prefix)
		fmt.Fprintf(c.out, "%s%s\n", prefix, c.link(ev.TxID))
	case KindConfirmed:
		color.New(color.FgGreen, color.Bold).Fprintf(c.out, "%sTransaction confirmed!\n", prefix)
		fmt.Fprintf(c.out, "%s%s\n", prefix, c.link(ev.TxID))
	case KindTimedOut:
		color.New(color.FgYellow).Fprintf(c.out, "%sTransaction failed. Not confirmed after %d attempts\n", prefix, ev.Attempt)
		fmt.Fprintf(c.out, "%sIt may still settle later: %s\n", prefix, c.link(ev.TxID))
	case KindQuoteUnavailable:
		color.New(color.FgRed).Fprintf(c.out, "%sTransaction failed. Couldn't get a quote\n", prefix)
		if ev.Reason != "" {
			fmt.Fprintf(c.out, "%s  %s\n", prefix, ev.Reason)
		}
	case KindSubmissionFailed:
		color.New(color.FgRed).Fprintf(c.out, "%sTransaction failed. %s\n", prefix, ev.Reason)
	default:
		fmt.Fprintf(c.out, "%s%s %s\n", prefix, ev.Kind, ev.TxID)
	}
}

func (c *Console) link(txid string) string {
	return c.explorer + txid
}
