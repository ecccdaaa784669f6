package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"LendLedger/internal/lenderr"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// maxOperationBody bounds POST /v1/operations payloads
const maxOperationBody = 1 << 20

// errorBody is the JSON error shape of the HTTP gateway
type errorBody struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// NewGatewayMux routes the HTTP/JSON API onto svc in process
func NewGatewayMux(svc LendingServiceServer) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()

	routes := []struct {
		method, pattern string
		handler         runtime.HandlerFunc
	}{
		{"POST", "/v1/operations/{type}", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxOperationBody))
			if err != nil {
				writeError(w, status.Errorf(codes.InvalidArgument, "read body: %v", err))
				return
			}
			resp, err := svc.SubmitOperation(r.Context(), &SubmitOperationRequest{Operation: p["type"], Payload: body})
			respond(w, resp, err)
		}},
		{"GET", "/v1/markets/{address}", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			resp, err := svc.GetMarket(r.Context(), &AddressRequest{Address: p["address"]})
			respond(w, resp, err)
		}},
		{"GET", "/v1/reserves/{address}", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			resp, err := svc.GetReserve(r.Context(), &AddressRequest{Address: p["address"]})
			respond(w, resp, err)
		}},
		{"GET", "/v1/obligations/{address}", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			resp, err := svc.GetObligation(r.Context(), &AddressRequest{Address: p["address"]})
			respond(w, resp, err)
		}},
		{"GET", "/v1/balances/{owner}", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			resp, err := svc.ListBalances(r.Context(), &ListBalancesRequest{Owner: p["owner"]})
			respond(w, resp, err)
		}},
		{"GET", "/v1/liquidations", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			req := &ListLiquidationCandidatesRequest{Market: r.URL.Query().Get("market")}
			if l := r.URL.Query().Get("limit"); l != "" {
				n, err := strconv.Atoi(l)
				if err != nil {
					writeError(w, status.Errorf(codes.InvalidArgument, "invalid limit %q", l))
					return
				}
				req.Limit = n
			}
			resp, err := svc.ListLiquidationCandidates(r.Context(), req)
			respond(w, resp, err)
		}},
		{"GET", "/v1/derive/{kind}", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			q := r.URL.Query()
			resp, err := svc.DeriveAddress(r.Context(), &DeriveAddressRequest{
				Kind:   p["kind"],
				First:  q.Get("first"),
				Second: q.Get("second"),
			})
			respond(w, resp, err)
		}},
	}

	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.handler); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func respond(w http.ResponseWriter, resp any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, err error) {
	st, _ := status.FromError(err)
	body := errorBody{Code: st.Code().String(), Message: st.Message()}
	if code := lenderr.ParseCode(codeName(st.Message())); code != lenderr.CodeUnknown {
		body.Code = code.String()
		body.Kind = code.Kind().String()
	}
	writeJSON(w, runtime.HTTPStatusFromCode(st.Code()), body)
}

// codeName extracts the leading "Code:" of a lending failure message
func codeName(msg string) string {
	name, _, _ := strings.Cut(msg, ":")
	return name
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
