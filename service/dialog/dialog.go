// Package dialog holds the state machine behind the "Create a new transaction"
// dialog: form fields, the in-flight flag and the last transfer outcome.
//
//	Closed -> Open(idle) -> Open(submitting) -> Open(idle, outcome) -> Closed
//
// Nothing leaves the submitting state except the transfer settling.
package dialog

import (
	"context"
	"errors"
	"sync"

	"github.com/brojonat/solxfer/service/solana"
)

// ValidationMessage is shown when Submit is called with an empty field.
const ValidationMessage = "Please fill in the address and amount!"

var (
	// ErrSubmitting is returned when a second submission is attempted while one is in flight.
	ErrSubmitting = errors.New("a transfer is already in flight")

	// ErrClosed is returned when submitting a dialog that isn't open.
	ErrClosed = errors.New("dialog is closed")
)

// TransferFunc runs one transfer attempt.
type TransferFunc func(ctx context.Context, req solana.TransferRequest) solana.TransferOutcome

// View is an immutable snapshot of the dialog.
type View struct {
	Open        bool
	Submitting  bool
	Address     string
	Amount      string
	Outcome     *solana.TransferOutcome
	ExplorerURL string // set only for successful outcomes
}

// Dialog is safe for concurrent use. Each browser session owns one.
type Dialog struct {
	explorerHost string
	cluster      string

	mu         sync.Mutex
	open       bool
	submitting bool
	address    string
	amount     string
	outcome    *solana.TransferOutcome

	subs    map[int]chan View
	nextSub int
}

// New creates a closed dialog whose success links point at explorerHost for cluster.
func New(explorerHost, cluster string) *Dialog {
	return &Dialog{
		explorerHost: explorerHost,
		cluster:      cluster,
		subs:         make(map[int]chan View),
	}
}

// Open shows the dialog with empty fields and no outcome.
// Opening an already open dialog changes nothing.
func (d *Dialog) Open() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open {
		return
	}
	d.reset()
	d.open = true
	d.notify()
}

// Close resets and hides the dialog. It is a no-op while a submission is in
// flight, in which case it returns false.
func (d *Dialog) Close() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.submitting {
		return false
	}
	d.reset()
	d.open = false
	d.notify()
	return true
}

// SetAddress replaces the address field. Ignored while submitting or closed.
func (d *Dialog) SetAddress(value string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.editable() {
		return false
	}
	if d.address != value {
		d.address = value
		d.notify()
	}
	return true
}

// SetAmount replaces the amount field if value is numeric (or empty).
// Non-numeric input is dropped silently and the previous value kept.
func (d *Dialog) SetAmount(value string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.editable() || !solana.IsNumeric(value) {
		return false
	}
	if d.amount != value {
		d.amount = value
		d.notify()
	}
	return true
}

// Begin starts a submission. With an empty field it records the validation
// outcome and returns ok=false without entering the submitting state.
// Otherwise it marks the dialog submitting and returns the request to run;
// the caller must follow up with Finish.
func (d *Dialog) Begin() (req solana.TransferRequest, ok bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return req, false, ErrClosed
	}
	if d.submitting {
		return req, false, ErrSubmitting
	}

	if d.address == "" || d.amount == "" {
		d.outcome = &solana.TransferOutcome{Done: false, Message: ValidationMessage}
		d.notify()
		return req, false, nil
	}

	d.submitting = true
	d.notify()
	return solana.TransferRequest{Address: d.address, Amount: d.amount}, true, nil
}

// Finish records the outcome of the submission started by Begin and makes
// the dialog interactive again.
func (d *Dialog) Finish(outcome solana.TransferOutcome) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.submitting = false
	d.outcome = &outcome
	d.notify()
}

// Submit runs Begin, fn and Finish in sequence and returns the resulting
// outcome. fn is not called when validation fails.
func (d *Dialog) Submit(ctx context.Context, fn TransferFunc) (solana.TransferOutcome, error) {
	req, ok, err := d.Begin()
	if err != nil {
		return solana.TransferOutcome{}, err
	}
	if !ok {
		return solana.TransferOutcome{Done: false, Message: ValidationMessage}, nil
	}

	outcome := fn(ctx, req)
	d.Finish(outcome)
	return outcome, nil
}

// View returns the current snapshot.
func (d *Dialog) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.view()
}

// Subscribe returns a channel that receives the latest snapshot after every
// change, and a function to stop receiving. Slow readers only see the most
// recent snapshot.
func (d *Dialog) Subscribe() (<-chan View, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextSub
	d.nextSub++
	ch := make(chan View, 1)
	d.subs[id] = ch

	return ch, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(ch)
		}
	}
}

func (d *Dialog) editable() bool {
	return d.open && !d.submitting
}

func (d *Dialog) reset() {
	d.address = ""
	d.amount = ""
	d.outcome = nil
}

// view must be called with mu held.
func (d *Dialog) view() View {
	v := View{
		Open:       d.open,
		Submitting: d.submitting,
		Address:    d.address,
		Amount:     d.amount,
	}
	if d.outcome != nil {
		o := *d.outcome
		v.Outcome = &o
		if o.Done {
			v.ExplorerURL = solana.ExplorerTxURL(d.explorerHost, o.Message, d.cluster)
		}
	}
	return v
}

// notify must be called with mu held.
func (d *Dialog) notify() {
	if len(d.subs) == 0 {
		return
	}
	v := d.view()
	for _, ch := range d.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}
