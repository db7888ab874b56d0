package syscoinda

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/syscoin/syscoinda/internal/jsonrpc"
)

// DataAvailabilityClient is the contract a host node holds to post blobs to a
// data-availability layer and read them back.
type DataAvailabilityClient interface {
	// DispatchBlob submits data and returns the identifier the blob can later
	// be fetched by. batchNumber identifies the host's batch and is only used
	// for diagnostics.
	DispatchBlob(ctx context.Context, batchNumber uint32, data []byte) (DispatchResponse, error)

	// GetInclusionData returns the blob's data, or nil if the DA layer has no
	// record of it yet. Not finding a blob is not an error.
	GetInclusionData(ctx context.Context, blobID string) (*InclusionData, error)

	// Clone returns an independent handle sharing the same transport.
	Clone() DataAvailabilityClient

	// BlobSizeLimit returns the maximum blob size, if one is known.
	BlobSizeLimit() (int, bool)
}

// DispatchResponse is the result of a successful DispatchBlob.
type DispatchResponse struct {
	// BlobID is the opaque identifier returned by the node.
	BlobID string
}

// InclusionData is the data of a blob the DA layer has included.
type InclusionData struct {
	Data []byte
}

// SyscoinClient is a DataAvailabilityClient backed by a Syscoin node's
// JSON-RPC blob API.
//
// SyscoinClient is safe for concurrent use and is immutable after
// construction. Clones share the underlying HTTP client and its connection
// pool.
type SyscoinClient struct {
	cfg    Config
	rpc    *jsonrpc.Client
	logger Logger
	// endpointErr is set when cfg.RPCURL does not parse; every call then
	// fails with it without sending anything.
	endpointErr error
}

var _ DataAvailabilityClient = (*SyscoinClient)(nil)

// Option configures a SyscoinClient.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	logger     Logger
}

// WithHTTPClient sets the HTTP client used for RPC calls. When set,
// Config.RequestTimeout is not applied; the client's own timeout is used.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = hc
	}
}

// WithLogger sets the logger for diagnostic messages. The default is
// DefaultLogger.
func WithLogger(l Logger) Option {
	return func(o *clientOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewSyscoinClient creates a client for the node described by cfg. It performs
// no I/O and never fails: an endpoint ParseEndpoint rejects surfaces as a
// transport error on every call, and no request is ever posted to it. Empty
// method names fall back to the defaults.
func NewSyscoinClient(cfg Config, opts ...Option) *SyscoinClient {
	o := clientOptions{logger: DefaultLogger}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if cfg.CreateBlobMethod == "" {
		cfg.CreateBlobMethod = MethodCreateBlob
	}
	if cfg.GetBlobDataMethod == "" {
		cfg.GetBlobDataMethod = MethodGetBlobData
	}

	var url string
	user, password := cfg.User, cfg.Password
	ep, endpointErr := ParseEndpoint(cfg.RPCURL)
	if endpointErr == nil {
		url = ep.URL
		if ep.HasCredentials() {
			user, password = ep.User, ep.Password
		}
	} else {
		endpointErr = errors.Wrap(endpointErr, "rpc-url")
	}

	return &SyscoinClient{
		cfg: cfg,
		rpc: jsonrpc.NewClient(url,
			jsonrpc.WithBasicAuth(user, password),
			jsonrpc.WithHTTPClient(o.httpClient)),
		logger:      o.logger,
		endpointErr: endpointErr,
	}
}

// call issues one RPC, classifying any failure as a DAError.
func (c *SyscoinClient) call(ctx context.Context, method string, params, result any) (bool, *DAError) {
	if c.endpointErr != nil {
		return false, &DAError{Kind: KindTransport, Err: c.endpointErr}
	}
	ok, err := c.rpc.Call(ctx, method, params, result)
	if err != nil {
		return false, newCallError(err)
	}
	return ok, nil
}

// DispatchBlob hex-encodes data and submits it to the node. The returned
// BlobID is the node's version hash, verbatim.
func (c *SyscoinClient) DispatchBlob(
	ctx context.Context, batchNumber uint32, data []byte,
) (DispatchResponse, error) {
	method := c.cfg.CreateBlobMethod
	callID := uuid.NewString()

	var result createBlobResult
	ok, daErr := c.call(ctx, method, createBlobParams{Data: EncodeBlob(data)}, &result)
	if daErr != nil {
		c.logger.Errorf("syscoinda: %s [%s] batch %d: %s error: %v",
			method, callID, batchNumber, daErr.Kind, daErr)
		return DispatchResponse{}, daErr
	}
	if !ok || result.VersionHash == nil {
		err := errors.Newf("%s: response carries no versionhash", method)
		c.logger.Errorf("syscoinda: %s [%s] batch %d: %v", method, callID, batchNumber, err)
		return DispatchResponse{}, &DAError{Kind: KindTransport, Err: err}
	}

	c.logger.Infof("syscoinda: %s [%s] batch %d: dispatched %d bytes as %s",
		method, callID, batchNumber, len(data), *result.VersionHash)
	return DispatchResponse{BlobID: *result.VersionHash}, nil
}

// GetInclusionData fetches a blob's data by the ID DispatchBlob returned. It
// returns nil, nil when the node has no data for the blob. A result that is
// not an object, or data that is not a string, is a KindTransport error rather
// than "no data".
func (c *SyscoinClient) GetInclusionData(ctx context.Context, blobID string) (*InclusionData, error) {
	key, err := LookupKey(blobID)
	if err != nil {
		return nil, err
	}
	method := c.cfg.GetBlobDataMethod
	callID := uuid.NewString()

	var result blobDataResult
	ok, daErr := c.call(ctx, method, blobDataParams{VersionHashOrTxID: key}, &result)
	if daErr != nil {
		c.logger.Errorf("syscoinda: %s [%s] blob %s: %s error: %v",
			method, callID, blobID, daErr.Kind, daErr)
		return nil, daErr
	}
	if !ok || result.Data == nil {
		c.logger.Infof("syscoinda: %s [%s] blob %s: no data yet", method, callID, blobID)
		return nil, nil
	}

	data, err := DecodeBlob(*result.Data)
	if err != nil {
		c.logger.Errorf("syscoinda: %s [%s] blob %s: %v", method, callID, blobID, err)
		return nil, &DAError{Kind: KindDecode, Err: err}
	}
	c.logger.Infof("syscoinda: %s [%s] blob %s: fetched %d bytes", method, callID, blobID, len(data))
	return &InclusionData{Data: data}, nil
}

// Clone returns a handle sharing c's configuration and transport.
func (c *SyscoinClient) Clone() DataAvailabilityClient {
	clone := *c
	return &clone
}

// BlobSizeLimit always reports that no limit is known; the node enforces its
// own limits on submission.
func (c *SyscoinClient) BlobSizeLimit() (int, bool) {
	return 0, false
}

// ExplorerURL returns the configured blob explorer's page for blobID.
func (c *SyscoinClient) ExplorerURL(blobID string) (string, error) {
	return ExplorerURL(c.cfg.BlobExplorerURL, blobID)
}

// String returns a description of the client that never includes
// credentials.
func (c *SyscoinClient) String() string {
	return fmt.Sprintf("SyscoinClient{rpc_url: %s}", redactURL(c.rpc.URL()))
}

// GoString implements fmt.GoStringer so that %#v does not print credentials.
func (c *SyscoinClient) GoString() string {
	return c.String()
}
