package server_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"LendLedger/internal/address"
	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/ingestion"
	"LendLedger/internal/lenderr"
	"LendLedger/internal/observability"
	"LendLedger/internal/query"
	"LendLedger/internal/server"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var (
	market = address.Named("market")
	owner  = address.Named("owner")
)

type fakeProcessor struct {
	err error
}

func (f *fakeProcessor) ProcessOperation(op event.Event) (*core.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.Receipt{
		Sequence:    7,
		OperationID: op.IdempotencyKey(),
		Operation:   op.EventType().String(),
		Slot:        op.OperationSlot(),
	}, nil
}

type fakeQueries struct{}

func (fakeQueries) GetMarket(_ context.Context, addr address.Address) (*query.MarketResponse, error) {
	if addr != market {
		return nil, lenderr.New(lenderr.CodeMarketNotFound, "%s", addr.Short())
	}
	return &query.MarketResponse{Address: addr.String(), Owner: owner.String(), QuoteCurrency: "USD"}, nil
}

func (fakeQueries) GetReserve(_ context.Context, addr address.Address) (*query.ReserveResponse, error) {
	return nil, lenderr.New(lenderr.CodeReserveNotFound, "%s", addr.Short())
}

func (fakeQueries) GetObligation(_ context.Context, addr address.Address) (*query.ObligationResponse, error) {
	return nil, lenderr.New(lenderr.CodeObligationNotFound, "%s", addr.Short())
}

func (fakeQueries) ListBalances(_ context.Context, o address.Address) (*query.BalancesResponse, error) {
	return &query.BalancesResponse{Owner: o.String()}, nil
}

func (fakeQueries) ListLiquidationCandidates(context.Context, address.Address, int) ([]query.ObligationResponse, error) {
	return nil, nil
}

func newServer(t *testing.T, procErr error) *server.Server {
	t.Helper()
	sub := ingestion.NewSubmitter(&fakeProcessor{err: procErr}, nil, nil)
	svc := server.NewLendingService(sub, fakeQueries{})
	health := observability.NewHealthChecker()
	health.SetReady(true)
	return server.NewServer("127.0.0.1:0", "127.0.0.1:0", svc, health)
}

func newHTTP(t *testing.T, procErr error) *httptest.Server {
	t.Helper()
	handler, err := newServer(t, procErr).Handler()
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func fundPayload(t *testing.T) []byte {
	t.Helper()
	op := &event.FundWallet{
		Header: event.Header{OperationID: uuid.New(), Slot: 3, Signer: owner},
		Owner:  owner,
		Mint:   address.Named("usdc"),
		Amount: 100,
	}
	data, err := json.Marshal(op)
	require.NoError(t, err)
	return data
}

func decode(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestGatewaySubmitOperation(t *testing.T) {
	ts := newHTTP(t, nil)

	resp, err := http.Post(ts.URL+"/v1/operations/fund_wallet", "application/json", strings.NewReader(string(fundPayload(t))))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body server.SubmitOperationResponse
	decode(t, resp, &body)
	require.NotNil(t, body.Receipt)
	assert.Equal(t, int64(7), body.Receipt.Sequence)
	assert.Equal(t, "fund_wallet", body.Receipt.Operation)
}

func TestGatewayErrors(t *testing.T) {
	tests := []struct {
		name       string
		procErr    error
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
		wantKind   string
	}{
		{
			name:       "malformed payload",
			method:     http.MethodPost,
			path:       "/v1/operations/fund_wallet",
			body:       `{"amount":"lots"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidArgument",
		},
		{
			name:       "unknown operation",
			method:     http.MethodPost,
			path:       "/v1/operations/trade_fill",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidArgument",
		},
		{
			name:       "rejected by core",
			procErr:    lenderr.New(lenderr.CodeReserveStale, "refresh first"),
			method:     http.MethodPost,
			path:       "/v1/operations/fund_wallet",
			wantStatus: http.StatusBadRequest,
			wantCode:   "ReserveStale",
			wantKind:   "Staleness",
		},
		{
			name:       "market not found",
			method:     http.MethodGet,
			path:       "/v1/markets/" + address.Named("nope").String(),
			wantStatus: http.StatusNotFound,
			wantCode:   "MarketNotFound",
			wantKind:   "NotFound",
		},
		{
			name:       "reserve not found",
			method:     http.MethodGet,
			path:       "/v1/reserves/" + address.Named("nope").String(),
			wantStatus: http.StatusNotFound,
			wantCode:   "ReserveNotFound",
			wantKind:   "NotFound",
		},
		{
			name:       "bad address",
			method:     http.MethodGet,
			path:       "/v1/obligations/xyz",
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidArgument",
		},
		{
			name:       "bad limit",
			method:     http.MethodGet,
			path:       "/v1/liquidations?limit=ten",
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidArgument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newHTTP(t, tt.procErr)
			body := tt.body
			if body == "" && tt.method == http.MethodPost {
				body = string(fundPayload(t))
			}
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, strings.NewReader(body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var got map[string]string
			decode(t, resp, &got)
			assert.Equal(t, tt.wantCode, got["code"])
			assert.Equal(t, tt.wantKind, got["kind"])
			assert.NotEmpty(t, got["message"])
		})
	}
}

func TestGatewayReads(t *testing.T) {
	ts := newHTTP(t, nil)

	resp, err := http.Get(ts.URL + "/v1/markets/" + market.String())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var m query.MarketResponse
	decode(t, resp, &m)
	assert.Equal(t, market.String(), m.Address)
	assert.Equal(t, "USD", m.QuoteCurrency)

	resp, err = http.Get(ts.URL + "/v1/liquidations?market=" + market.String() + "&limit=5")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var liq server.ListLiquidationCandidatesResponse
	decode(t, resp, &liq)
	assert.NotNil(t, liq.Obligations)
	assert.Empty(t, liq.Obligations)

	resp, err = http.Get(ts.URL + "/v1/derive/reserve?first=" + market.String() + "&second=" + address.Named("usdc").String())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var d query.DeriveResponse
	decode(t, resp, &d)
	assert.Equal(t, address.ReserveAddress(market, address.Named("usdc")).String(), d.Address)

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGRPCJSONCodec(t *testing.T) {
	srv := newServer(t, nil)
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() { done <- srv.ServeGRPC(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(server.CodecName)),
	)
	require.NoError(t, err)
	defer conn.Close()

	var m query.MarketResponse
	err = conn.Invoke(ctx, "/"+server.ServiceName+"/GetMarket", &server.AddressRequest{Address: market.String()}, &m)
	require.NoError(t, err)
	assert.Equal(t, owner.String(), m.Owner)

	err = conn.Invoke(ctx, "/"+server.ServiceName+"/GetReserve", &server.AddressRequest{Address: market.String()}, &query.ReserveResponse{})
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
	assert.True(t, strings.HasPrefix(st.Message(), "ReserveNotFound:"))

	var sub server.SubmitOperationResponse
	err = conn.Invoke(ctx, "/"+server.ServiceName+"/SubmitOperation",
		&server.SubmitOperationRequest{Operation: "fund_wallet", Payload: fundPayload(t)}, &sub)
	require.NoError(t, err)
	assert.Equal(t, "fund_wallet", sub.Receipt.Operation)
}
