package checkout

import (
	"context"
	"errors"

	"github.com/faithboy007/world-conquest-veterinary-home/validation"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	ErrMissingProduct    = errors.New("product information is missing")
	ErrWidgetUnavailable = errors.New("payment widget is not available")
	ErrModalClosed       = errors.New("checkout modal is closed")
	ErrSubmitInProgress  = errors.New("checkout submission already in progress")
	ErrUnknownEvent      = errors.New("unknown checkout event")
)

const (
	MsgMissingProduct = "Product information is missing"
	MsgWidgetLoading  = "Payment system is loading, please try again in a moment"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSubmitting:
		return "submitting"
	default:
		return "closed"
	}
}

// PurchaseRequest is what a catalog trigger hands to the modal. PriceMajor is
// in whole currency units.
type PurchaseRequest struct {
	ProductName string
	PriceMajor  int64
}

type EventType string

const (
	EventClose        EventType = "close"
	EventOverlayClick EventType = "overlay_click"
	EventSubmit       EventType = "submit"
)

// Event is a UI event raised on a specific modal instance.
type Event struct {
	Type    EventType
	ModalID string
	Form    validation.CheckoutForm
}

type listener func(ctx context.Context, ev Event) error

// Modal is one mounted checkout overlay. Its listeners live exactly as long
// as the mount.
type Modal struct {
	id        string
	req       PurchaseRequest
	currency  string
	state     State
	errors    validation.FieldErrors
	handle    Handle
	listeners map[EventType]listener
}

func (m *Modal) ID() string {
	return m.id
}

func (m *Modal) State() State {
	return m.state
}

func (m *Modal) view() View {
	return View{
		ModalID:      m.id,
		ProductName:  m.req.ProductName,
		Price:        m.req.PriceMajor,
		PriceDisplay: FormatPrice(m.currency, m.req.PriceMajor),
		State:        m.state.String(),
		Errors:       m.errors,
	}
}

func (m *Modal) render() {
	if m.handle != nil {
		m.handle.Update(m.view())
	}
}

// close detaches the overlay and drops every listener. It reports whether
// anything was torn down.
func (m *Modal) close() (State, bool) {
	if m.state == StateClosed {
		return StateClosed, false
	}
	prev := m.state
	m.state = StateClosed
	m.listeners = nil
	m.errors = nil
	if m.handle != nil {
		m.handle.Unmount()
		m.handle = nil
	}
	return prev, true
}

var currencySymbols = map[string]string{
	"NGN": "₦",
	"USD": "$",
	"GHS": "GH₵",
	"ZAR": "R",
}

var pricePrinter = message.NewPrinter(language.English)

// FormatPrice renders a whole-unit price with grouping, e.g. ₦12,500.
func FormatPrice(currency string, major int64) string {
	symbol, ok := currencySymbols[currency]
	if !ok {
		symbol = currency + " "
	}
	return symbol + pricePrinter.Sprintf("%d", major)
}
