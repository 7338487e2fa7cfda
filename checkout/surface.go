package checkout

import (
	"sync"

	"github.com/faithboy007/world-conquest-veterinary-home/validation"
)

// View is what the checkout overlay renders.
type View struct {
	ModalID      string                 `json:"modal_id"`
	ProductName  string                 `json:"product_name"`
	Price        int64                  `json:"price"`
	PriceDisplay string                 `json:"price_display"`
	State        string                 `json:"state"`
	Errors       validation.FieldErrors `json:"errors,omitempty"`
}

// Surface is the rendering side of the modal. A mounted handle stays
// attached until Unmount is called.
type Surface interface {
	Mount(view View) Handle
}

type Handle interface {
	Update(view View)
	Unmount()
}

// Overlay is an in-memory Surface. It keeps the latest view of every mounted
// handle so it can be served to the page.
type Overlay struct {
	mu      sync.Mutex
	mounted map[*overlayHandle]View
}

func NewOverlay() *Overlay {
	return &Overlay{mounted: make(map[*overlayHandle]View)}
}

func (o *Overlay) Mount(view View) Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	h := &overlayHandle{overlay: o}
	o.mounted[h] = view
	return h
}

// Attached returns the number of mounted handles.
func (o *Overlay) Attached() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.mounted)
}

// Current returns the view of the mounted modal, if any.
func (o *Overlay) Current() (View, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, v := range o.mounted {
		return v, true
	}
	return View{}, false
}

type overlayHandle struct {
	overlay *Overlay
}

func (h *overlayHandle) Update(view View) {
	h.overlay.mu.Lock()
	defer h.overlay.mu.Unlock()
	if _, ok := h.overlay.mounted[h]; ok {
		h.overlay.mounted[h] = view
	}
}

func (h *overlayHandle) Unmount() {
	h.overlay.mu.Lock()
	defer h.overlay.mu.Unlock()
	delete(h.overlay.mounted, h)
}
