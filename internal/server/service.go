package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"LendLedger/internal/address"
	"LendLedger/internal/core"
	"LendLedger/internal/ingestion"
	"LendLedger/internal/lenderr"
	"LendLedger/internal/query"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "lendledger.v1.LendingService"

// --- messages ---

type SubmitOperationRequest struct {
	Operation string          `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
}

type SubmitOperationResponse struct {
	Receipt *core.Receipt `json:"receipt"`
}

type AddressRequest struct {
	Address string `json:"address"`
}

type ListBalancesRequest struct {
	Owner string `json:"owner"`
}

type ListLiquidationCandidatesRequest struct {
	Market string `json:"market,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type ListLiquidationCandidatesResponse struct {
	Obligations []query.ObligationResponse `json:"obligations"`
}

type DeriveAddressRequest struct {
	Kind   string `json:"kind"`
	First  string `json:"first"`
	Second string `json:"second,omitempty"`
}

// Queries is the read side the service serves from. *query.QueryService
// implements it.
type Queries interface {
	GetMarket(ctx context.Context, addr address.Address) (*query.MarketResponse, error)
	GetReserve(ctx context.Context, addr address.Address) (*query.ReserveResponse, error)
	GetObligation(ctx context.Context, addr address.Address) (*query.ObligationResponse, error)
	ListBalances(ctx context.Context, owner address.Address) (*query.BalancesResponse, error)
	ListLiquidationCandidates(ctx context.Context, market address.Address, limit int) ([]query.ObligationResponse, error)
}

// LendingServiceServer is the server API of lendledger.v1.LendingService
type LendingServiceServer interface {
	SubmitOperation(context.Context, *SubmitOperationRequest) (*SubmitOperationResponse, error)
	GetMarket(context.Context, *AddressRequest) (*query.MarketResponse, error)
	GetReserve(context.Context, *AddressRequest) (*query.ReserveResponse, error)
	GetObligation(context.Context, *AddressRequest) (*query.ObligationResponse, error)
	ListBalances(context.Context, *ListBalancesRequest) (*query.BalancesResponse, error)
	ListLiquidationCandidates(context.Context, *ListLiquidationCandidatesRequest) (*ListLiquidationCandidatesResponse, error)
	DeriveAddress(context.Context, *DeriveAddressRequest) (*query.DeriveResponse, error)
}

// LendingService implements LendingServiceServer: operations go
// through the submitter, reads through the projections.
type LendingService struct {
	submitter *ingestion.Submitter
	queries   Queries
}

var _ LendingServiceServer = (*LendingService)(nil)

func NewLendingService(submitter *ingestion.Submitter, queries Queries) *LendingService {
	return &LendingService{submitter: submitter, queries: queries}
}

func (s *LendingService) SubmitOperation(ctx context.Context, req *SubmitOperationRequest) (*SubmitOperationResponse, error) {
	if req.Operation == "" {
		return nil, status.Error(codes.InvalidArgument, "operation is required")
	}
	if len(req.Payload) == 0 {
		return nil, status.Error(codes.InvalidArgument, "payload is required")
	}
	receipt, err := s.submitter.Submit(req.Operation, req.Payload)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SubmitOperationResponse{Receipt: receipt}, nil
}

func (s *LendingService) GetMarket(ctx context.Context, req *AddressRequest) (*query.MarketResponse, error) {
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		return nil, err
	}
	resp, err := s.queries.GetMarket(ctx, addr)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *LendingService) GetReserve(ctx context.Context, req *AddressRequest) (*query.ReserveResponse, error) {
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		return nil, err
	}
	resp, err := s.queries.GetReserve(ctx, addr)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *LendingService) GetObligation(ctx context.Context, req *AddressRequest) (*query.ObligationResponse, error) {
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		return nil, err
	}
	resp, err := s.queries.GetObligation(ctx, addr)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *LendingService) ListBalances(ctx context.Context, req *ListBalancesRequest) (*query.BalancesResponse, error) {
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		return nil, err
	}
	resp, err := s.queries.ListBalances(ctx, owner)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *LendingService) ListLiquidationCandidates(ctx context.Context, req *ListLiquidationCandidatesRequest) (*ListLiquidationCandidatesResponse, error) {
	var market address.Address
	if req.Market != "" {
		var err error
		if market, err = parseAddress("market", req.Market); err != nil {
			return nil, err
		}
	}
	obligations, err := s.queries.ListLiquidationCandidates(ctx, market, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	if obligations == nil {
		obligations = []query.ObligationResponse{}
	}
	return &ListLiquidationCandidatesResponse{Obligations: obligations}, nil
}

func (s *LendingService) DeriveAddress(ctx context.Context, req *DeriveAddressRequest) (*query.DeriveResponse, error) {
	first, err := parseAddress("first", req.First)
	if err != nil {
		return nil, err
	}
	var second address.Address
	if req.Second != "" {
		if second, err = parseAddress("second", req.Second); err != nil {
			return nil, err
		}
	}
	resp, err := query.DeriveAddress(req.Kind, first, second)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return resp, nil
}

func parseAddress(field, s string) (address.Address, error) {
	if s == "" {
		return address.Zero, status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	a, err := address.Parse(s)
	if err != nil {
		return address.Zero, status.Errorf(codes.InvalidArgument, "invalid %s: %v", field, err)
	}
	return a, nil
}

// toStatus maps lending failures by kind and malformed payloads to
// InvalidArgument; anything else is Internal. Lending failures keep their
// code name as the message prefix.
func toStatus(err error) error {
	if errors.Is(err, ingestion.ErrMalformed) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if code := lenderr.CodeOf(err); code != lenderr.CodeUnknown {
		msg := err.Error()
		if !strings.HasPrefix(msg, code.String()+":") {
			msg = code.String() + ": " + msg
		}
		return status.Error(lenderr.GRPCCode(err), msg)
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, err.Error())
}

// --- service descriptor ---

func unaryHandler[Req any, Resp any](call func(LendingServiceServer, context.Context, *Req) (Resp, error), method string) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			svc := srv.(LendingServiceServer)
			if interceptor == nil {
				return call(svc, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(svc, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes LendingService for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LendingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(LendingServiceServer.SubmitOperation, "SubmitOperation"),
		unaryHandler(LendingServiceServer.GetMarket, "GetMarket"),
		unaryHandler(LendingServiceServer.GetReserve, "GetReserve"),
		unaryHandler(LendingServiceServer.GetObligation, "GetObligation"),
		unaryHandler(LendingServiceServer.ListBalances, "ListBalances"),
		unaryHandler(LendingServiceServer.ListLiquidationCandidates, "ListLiquidationCandidates"),
		unaryHandler(LendingServiceServer.DeriveAddress, "DeriveAddress"),
	},
	Metadata: "lendledger/v1/lending.proto",
}
