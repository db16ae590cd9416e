package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/liqmap_bridge/internal/pricing"
)

type priceResponse struct {
	Price        string `json:"price,omitempty"`
	Symbol       string `json:"symbol,omitempty"`
	Error        string `json:"error,omitempty"`
	RequestError string `json:"request_error,omitempty"`
	StatusCode   int    `json:"status_code,omitempty"`
}

type priceOutput struct {
	Status int
	Body   priceResponse
}

func registerPriceHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-crypto-price", Method: http.MethodGet, Path: "/api/get_crypto_price", Summary: "Get spot price in USD", Tags: []string{"Price"}},
		func(ctx context.Context, input *struct {
			Symbol string `query:"symbol" doc:"Cryptocurrency symbol, e.g. BTC"`
		}) (*priceOutput, error) {
			return lookupPrice(ctx, svc, input.Symbol), nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-crypto-price-post", Method: http.MethodPost, Path: "/api/get_crypto_price", Summary: "Get spot price in USD (JSON body)", Tags: []string{"Price"}},
		func(ctx context.Context, input *struct {
			Body *struct {
				Symbol string `json:"symbol,omitempty" doc:"Cryptocurrency symbol, e.g. BTC"`
			}
		}) (*priceOutput, error) {
			symbol := ""
			if input.Body != nil {
				symbol = input.Body.Symbol
			}
			return lookupPrice(ctx, svc, symbol), nil
		})
}

func lookupPrice(ctx context.Context, svc Service, symbol string) *priceOutput {
	quote, err := svc.GetPrice(ctx, symbol)
	if err == nil {
		return &priceOutput{Status: http.StatusOK, Body: priceResponse{Price: quote.Price, Symbol: quote.Symbol}}
	}

	status := http.StatusInternalServerError
	body := priceResponse{Error: "Internal server error."}
	var pe *pricing.Error
	if errors.As(err, &pe) {
		body.Error = pe.Message
		switch pe.Code {
		case pricing.CodeValidation:
			status = http.StatusBadRequest
		case pricing.CodeNotFound:
			status = http.StatusNotFound
		case pricing.CodeUpstream:
			status = http.StatusInternalServerError
		case pricing.CodeTransport:
			status = http.StatusServiceUnavailable
			if pe.Cause != nil {
				body.RequestError = pe.Cause.Error()
			}
		}
	}
	body.StatusCode = status
	return &priceOutput{Status: status, Body: body}
}
