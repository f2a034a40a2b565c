package receiving

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noven-pro/receiving/internal/platform/httpx"
	"github.com/noven-pro/receiving/internal/shared"
)

// Handler exposes the receiving engine over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers delivery routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listDeliveries)
	r.Post("/", h.createDelivery)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.getDelivery)
		r.Get("/postings", h.listPostings)
		r.Post("/items", h.addItem)
		r.Post("/receive", h.receive)
		r.Post("/send-to-quality", h.sendToQuality)
	})
}

type createDeliveryRequest struct {
	Supplier  string `json:"supplier" validate:"max=200"`
	Reference string `json:"reference" validate:"max=200"`
	Draft     bool   `json:"draft"`
}

type addItemRequest struct {
	ExpectedQty *int64 `json:"expectedQty" validate:"required,gte=0"`
}

type receiveRequest struct {
	Items []postingRequest `json:"items" validate:"required,min=1,dive"`
}

type postingRequest struct {
	ItemID string `json:"itemId" validate:"required,uuid"`
	Qty    *int64 `json:"qty" validate:"required,gte=0"`
}

type deliveryResponse struct {
	Delivery Delivery `json:"delivery"`
	Items    []Item   `json:"items"`
}

var errorMappings = []httpx.Mapping{
	{Err: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found", Type: "urn:receiving:not-found"},
	{Err: ErrInvalidInput, Status: http.StatusBadRequest, Title: "Invalid Input", Type: "urn:receiving:invalid-input"},
	{Err: ErrOverReceipt, Status: http.StatusUnprocessableEntity, Title: "Over-Receipt", Type: "urn:receiving:over-receipt"},
	{Err: ErrInvalidTransition, Status: http.StatusConflict, Title: "Invalid Transition", Type: "urn:receiving:invalid-transition"},
	{Err: ErrDuplicateReceipt, Status: http.StatusConflict, Title: "Duplicate Receipt", Type: "urn:receiving:duplicate-receipt"},
	{Err: ErrConflict, Status: http.StatusConflict, Title: "Conflict", Type: "urn:receiving:conflict"},
	{Err: httpx.ErrValidation, Status: http.StatusBadRequest, Title: "Invalid Input", Type: "urn:receiving:invalid-input"},
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	var raw []string
	for _, v := range r.URL.Query()["status.in"] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				raw = append(raw, strings.ToUpper(part))
			}
		}
	}
	statuses, err := parseStatuses(raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, perPage, paged, err := shared.PageRequest(r)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}
	deliveries, err := h.service.ListExpected(r.Context(), statuses)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if paged {
		p := shared.NewPagination(page, perPage, len(deliveries))
		start, end := p.Bounds()
		deliveries = deliveries[start:end]
		p.SetHeaders(w.Header())
	}
	httpx.JSON(w, http.StatusOK, deliveries)
}

func (h *Handler) createDelivery(w http.ResponseWriter, r *http.Request) {
	var req createDeliveryRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.service.CreateDelivery(r.Context(), CreateDeliveryInput{Supplier: req.Supplier, Reference: req.Reference, Draft: req.Draft})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := deliveryID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, items, err := h.service.GetDelivery(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []Item{}
	}
	httpx.JSON(w, http.StatusOK, deliveryResponse{Delivery: d, Items: items})
}

func (h *Handler) listPostings(w http.ResponseWriter, r *http.Request) {
	id, err := deliveryID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	postings, err := h.service.ListPostings(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, postings)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := deliveryID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req addItemRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	item, err := h.service.AddItem(r.Context(), id, *req.ExpectedQty)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, err := deliveryID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req receiveRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	input := ReceiveInput{DeliveryID: id, Key: r.Header.Get("Idempotency-Key")}
	for _, p := range req.Items {
		itemID, err := uuid.Parse(p.ItemID)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: item id %q", ErrInvalidInput, p.ItemID))
			return
		}
		input.Postings = append(input.Postings, PostingInput{ItemID: itemID, Qty: *p.Qty})
	}
	d, err := h.service.Receive(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) sendToQuality(w http.ResponseWriter, r *http.Request) {
	id, err := deliveryID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.service.SendToQuality(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !isMapped(err) {
		h.logger.Error("receiving request failed",
			slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err, errorMappings...)
}

func isMapped(err error) bool {
	for _, m := range errorMappings {
		if errors.Is(err, m.Err) {
			return true
		}
	}
	return false
}

func deliveryID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: delivery id %q", ErrInvalidInput, raw)
	}
	return id, nil
}
