package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shopledger/shopledger/internal/platform/httpx"
)

// Handler exposes the ledger operations as JSON endpoints. It parses and
// validates input and formats results; all business logic stays in Service.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/goods", h.listGoods)
	r.Post("/goods", h.addOrRestockProduct)
	r.Get("/goods/{name}", h.getProduct)
	r.Get("/goods/{name}/history", h.getProductHistory)
	r.Put("/goods/{name}/image", h.setProductImage)
	r.Put("/goods/{name}/description", h.updateProductDescription)
	r.Get("/sales", h.listTransactions)
	r.Post("/sales", h.recordSale)
	r.Get("/sales/{id}", h.getTransaction)
	r.Get("/debts", h.listUnsettledDebts)
	r.Post("/debts/payments", h.applyDebtPayment)
}

type addProductRequest struct {
	Name        string  `json:"name" validate:"required"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Quantity    int     `json:"quantity" validate:"required,gt=0"`
	Description string  `json:"description"`
}

func (h *Handler) addOrRestockProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.service.AddOrRestockProduct(r.Context(), AddProductInput{
		Name:        req.Name,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Description: req.Description,
	})
	if err != nil {
		h.respondError(w, r, "add or restock product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

type recordSaleRequest struct {
	Buyer      string  `json:"buyer" validate:"required"`
	Product    string  `json:"product" validate:"required"`
	Quantity   int     `json:"quantity" validate:"required,gt=0"`
	AmountPaid float64 `json:"amount_paid" validate:"gte=0"`
}

func (h *Handler) recordSale(w http.ResponseWriter, r *http.Request) {
	var req recordSaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	txn, err := h.service.RecordSale(r.Context(), RecordSaleInput{
		Buyer:      req.Buyer,
		Product:    req.Product,
		Quantity:   req.Quantity,
		AmountPaid: req.AmountPaid,
	})
	if err != nil {
		h.respondError(w, r, "record sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

type debtPaymentRequest struct {
	Buyer   string  `json:"buyer" validate:"required"`
	Product string  `json:"product" validate:"required"`
	Amount  float64 `json:"amount" validate:"required,gt=0"`
}

func (h *Handler) applyDebtPayment(w http.ResponseWriter, r *http.Request) {
	var req debtPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	debt, err := h.service.ApplyDebtPayment(r.Context(), DebtPaymentInput{
		Buyer:   req.Buyer,
		Product: req.Product,
		Amount:  req.Amount,
	})
	if err != nil {
		h.respondError(w, r, "apply debt payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, debt)
}

func (h *Handler) listGoods(w http.ResponseWriter, r *http.Request) {
	goods, err := h.service.ListGoods(r.Context())
	if err != nil {
		h.respondError(w, r, "list goods", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"goods": goods})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), pathName(r))
	if err != nil {
		h.respondError(w, r, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) getProductHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.GetProductHistory(r.Context(), pathName(r))
	if err != nil {
		h.respondError(w, r, "get product history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": history})
}

type productImageRequest struct {
	ImagePath string `json:"image_path" validate:"required"`
}

func (h *Handler) setProductImage(w http.ResponseWriter, r *http.Request) {
	var req productImageRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.service.SetProductImage(r.Context(), pathName(r), req.ImagePath)
	if err != nil {
		h.respondError(w, r, "set product image", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

type productDescriptionRequest struct {
	Description string `json:"description"`
}

func (h *Handler) updateProductDescription(w http.ResponseWriter, r *http.Request) {
	var req productDescriptionRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.service.UpdateProductDescription(r.Context(), pathName(r), req.Description)
	if err != nil {
		h.respondError(w, r, "update product description", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	filter := TransactionFilter{
		Product: r.URL.Query().Get("product"),
		Date:    r.URL.Query().Get("date"),
	}
	transactions, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, "list transactions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": transactions})
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.service.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, "get transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) listUnsettledDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := h.service.ListUnsettledDebts(r.Context(), r.URL.Query().Get("buyer"))
	if err != nil {
		h.respondError(w, r, "list unsettled debts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"debts": debts})
}

// decode parses and validates a JSON request body, writing the problem
// response itself when the input is unusable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", fields)
		return false
	}
	return true
}

// respondError maps ledger errors onto HTTP problem responses.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// pathName returns the decoded {name} URL parameter.
func pathName(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(name); err == nil {
		return decoded
	}
	return name
}
