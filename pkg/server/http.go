package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/erain9/tradesim/pkg/account"
	"github.com/erain9/tradesim/pkg/api"
	"github.com/erain9/tradesim/pkg/core"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// NewHTTPHandler returns the read-only HTTP API over engine and ledger
func NewHTTPHandler(engine *core.MatchingEngine, ledger *account.Ledger, grpcAddr string, logger zerolog.Logger) http.Handler {
	h := &httpHandler{engine: engine, ledger: ledger, grpcAddr: grpcAddr}

	r := chi.NewRouter()
	r.Use(requestLogging(logger))

	r.Get("/", h.banner)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/products", h.listProducts)
	r.Get("/products/{symbol}/book", h.getBook)
	r.Get("/orders/{order_id}", h.getOrder)
	r.Get("/accounts/{account}/holdings/{symbol}", h.getHolding)

	return r
}

type httpHandler struct {
	engine   *core.MatchingEngine
	ledger   *account.Ledger
	grpcAddr string
}

func (h *httpHandler) banner(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, "<html><body>")
	fmt.Fprintf(w, "<h1>tradesim</h1>")
	fmt.Fprintf(w, "<p>gRPC service %s listening on %s</p>", api.ServiceName, h.grpcAddr)
	fmt.Fprintf(w, "<p>Products: %v</p>", h.engine.Products())
	fmt.Fprintf(w, "</body></html>")
}

func (h *httpHandler) listProducts(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, api.ListProductsResponse{Products: h.engine.Products()})
}

func (h *httpHandler) getBook(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	depth := core.TopOfBookDepth
	if raw := r.URL.Query().Get("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "invalid_depth", "depth must be a positive integer")
			return
		}
		depth = min(n, maxDepth)
	}

	tob, err := h.engine.Depth(symbol, depth)
	if err != nil {
		WriteError(w, http.StatusNotFound, "product_not_found", fmt.Sprintf("product %s not found", symbol))
		return
	}
	WriteJSON(w, http.StatusOK, api.NewTopOfBookResponse(tob))
}

func (h *httpHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "order_id")
	state, ok := h.engine.GetOrder(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "order_not_found", fmt.Sprintf("order %s not found", id))
		return
	}
	WriteJSON(w, http.StatusOK, api.NewOrderResponse(state))
}

func (h *httpHandler) getHolding(w http.ResponseWriter, r *http.Request) {
	acct := chi.URLParam(r, "account")
	symbol := chi.URLParam(r, "symbol")
	if !h.engine.HasProduct(symbol) {
		WriteError(w, http.StatusNotFound, "product_not_found", fmt.Sprintf("product %s not found", symbol))
		return
	}
	WriteJSON(w, http.StatusOK, api.QuantityOwnedResponse{
		Account:  acct,
		Product:  symbol,
		Quantity: h.ledger.QuantityOwned(acct, symbol),
	})
}

// WriteJSON writes data as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes the standard error body
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorResponse{Error: code, Message: message})
}

func requestLogging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.status).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}

// statusWriter captures the status code for logging
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
