// Package testnode provides an in-memory Syscoin-style blob node served over
// HTTP for tests.
package testnode

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/syscoin/syscoinda/internal/jsonrpc"
)

// JSON-RPC error codes used by bitcoind-family nodes.
const (
	CodeInvalidParams  = -8
	CodeMethodNotFound = -32601
	CodeParseError     = -32700
)

// Node is a fake blob node. Blobs are stored in memory, keyed by the hex
// sha256 of their data; the version hash handed out is that key behind a
// 2-character prefix.
//
// Node is safe for concurrent use.
type Node struct {
	server *httptest.Server

	user, password string
	idPrefix       string
	createMethod   string
	getMethod      string

	mu       sync.Mutex
	blobs    map[string][]byte
	failures map[string]*jsonrpc.Error
	raw      map[string]rawReply
	requests map[string]int
	params   map[string]json.RawMessage
}

type rawReply struct {
	status int
	body   string
}

// Option configures a Node.
type Option func(*Node)

// WithBasicAuth makes the node reject requests without these credentials.
func WithBasicAuth(user, password string) Option {
	return func(n *Node) {
		n.user = user
		n.password = password
	}
}

// WithIDPrefix sets the prefix of returned version hashes. The default is
// "0x".
func WithIDPrefix(prefix string) Option {
	return func(n *Node) {
		n.idPrefix = prefix
	}
}

// WithMethods sets the method names the node serves.
func WithMethods(create, get string) Option {
	return func(n *Node) {
		n.createMethod = create
		n.getMethod = get
	}
}

// New starts a node. Callers must Close it.
func New(opts ...Option) *Node {
	n := &Node{
		idPrefix:     "0x",
		createMethod: "createblob",
		getMethod:    "getblobdata",
		blobs:        make(map[string][]byte),
		failures:     make(map[string]*jsonrpc.Error),
		raw:          make(map[string]rawReply),
		requests:     make(map[string]int),
		params:       make(map[string]json.RawMessage),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.serveHTTP))
	return n
}

// URL returns the node's endpoint.
func (n *Node) URL() string {
	return n.server.URL
}

// Close shuts the node down.
func (n *Node) Close() {
	n.server.Close()
}

// Put stores data under key directly, bypassing the RPC API.
func (n *Node) Put(key string, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blobs[key] = append([]byte(nil), data...)
}

// Len returns the number of stored blobs.
func (n *Node) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.blobs)
}

// FailMethod makes every call to method answer with err. A nil err clears
// the failure.
func (n *Node) FailMethod(method string, err *jsonrpc.Error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.failures, method)
		return
	}
	n.failures[method] = err
}

// ReplyRaw makes every call to method answer with status and body verbatim.
func (n *Node) ReplyRaw(method string, status int, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.raw[method] = rawReply{status: status, body: body}
}

// Requests returns the number of requests received for method.
func (n *Node) Requests(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.requests[method]
}

// LastParams returns the params of the last request for method.
func (n *Node) LastParams(method string) json.RawMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.params[method]
}

type request struct {
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
}

type response struct {
	Result any             `json:"result"`
	Error  *jsonrpc.Error  `json:"error"`
	ID     json.RawMessage `json:"id"`
}

func (n *Node) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if n.user != "" || n.password != "" {
		user, password, ok := r.BasicAuth()
		if !ok || user != n.user || password != n.password {
			// bitcoind answers bad credentials with an empty 401.
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		n.reply(w, http.StatusInternalServerError, response{
			Error: &jsonrpc.Error{Code: CodeParseError, Message: "Parse error"},
		})
		return
	}

	n.mu.Lock()
	n.requests[req.Method]++
	n.params[req.Method] = req.Params
	raw, hasRaw := n.raw[req.Method]
	failure := n.failures[req.Method]
	n.mu.Unlock()

	if hasRaw {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(raw.status)
		_, _ = w.Write([]byte(raw.body))
		return
	}
	if failure != nil {
		n.reply(w, http.StatusInternalServerError, response{Error: failure, ID: req.ID})
		return
	}

	switch req.Method {
	case n.createMethod:
		n.createBlob(w, req)
	case n.getMethod:
		n.getBlobData(w, req)
	default:
		n.reply(w, http.StatusNotFound, response{
			Error: &jsonrpc.Error{Code: CodeMethodNotFound, Message: "Method not found"},
			ID:    req.ID,
		})
	}
}

func (n *Node) createBlob(w http.ResponseWriter, req request) {
	var params struct {
		Data *string `json:"data"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Data == nil {
		n.invalidParams(w, req, "data must be a hex string")
		return
	}
	data, err := hex.DecodeString(*params.Data)
	if err != nil {
		n.invalidParams(w, req, "data must be hexadecimal")
		return
	}

	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])
	n.Put(key, data)
	n.reply(w, http.StatusOK, response{
		Result: map[string]string{"versionhash": n.idPrefix + key},
		ID:     req.ID,
	})
}

func (n *Node) getBlobData(w http.ResponseWriter, req request) {
	var params struct {
		Key *string `json:"versionhash_or_txid"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Key == nil {
		n.invalidParams(w, req, "versionhash_or_txid must be a string")
		return
	}

	n.mu.Lock()
	data, ok := n.blobs[*params.Key]
	n.mu.Unlock()

	result := map[string]any{"data": nil}
	if ok {
		result["data"] = hex.EncodeToString(data)
	}
	n.reply(w, http.StatusOK, response{Result: result, ID: req.ID})
}

func (n *Node) invalidParams(w http.ResponseWriter, req request, msg string) {
	n.reply(w, http.StatusInternalServerError, response{
		Error: &jsonrpc.Error{Code: CodeInvalidParams, Message: msg},
		ID:    req.ID,
	})
}

func (n *Node) reply(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
