package syscoinda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syscoin/syscoinda/internal/testnode"
)

// recordingLogger captures log lines for assertions.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Infof(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, "INFO "+fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Errorf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, "ERROR "+fmt.Sprintf(format, args...))
}

func (l *recordingLogger) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

func newTestClient(url string, opts ...Option) *SyscoinClient {
	cfg := DefaultConfig()
	cfg.RPCURL = url
	cfg.RequestTimeout = 5 * time.Second
	return NewSyscoinClient(cfg, append([]Option{WithLogger(NopLogger)}, opts...)...)
}

// rpcServer answers every call to method with body, and fails the test on
// any other method.
func rpcServer(t *testing.T, method string, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &req); err != nil || req.Method != method {
			t.Errorf("unexpected request %s", b)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func requireDAError(t *testing.T, err error, kind ErrorKind) *DAError {
	t.Helper()
	require.Error(t, err)
	var daErr *DAError
	require.True(t, errors.As(err, &daErr), "expected *DAError, got %T: %v", err, err)
	assert.Equal(t, kind, daErr.Kind)
	assert.False(t, daErr.Retriable)
	assert.False(t, IsRetriable(err))
	assert.True(t, errors.Is(err, kind.Error()))
	return daErr
}

func TestDispatchAndFetchRoundTrip(t *testing.T) {
	node := testnode.New(testnode.WithBasicAuth("u", "p"))
	defer node.Close()

	client := newTestClient(node.URL())
	ctx := context.Background()

	for _, data := range [][]byte{
		{0xDE, 0xAD, 0xBE, 0xEF},
		{},
		[]byte(strings.Repeat("rollup batch ", 1000)),
	} {
		resp, err := client.DispatchBlob(ctx, 7, data)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(resp.BlobID, "0x"), resp.BlobID)

		incl, err := client.GetInclusionData(ctx, resp.BlobID)
		require.NoError(t, err)
		require.NotNil(t, incl)
		require.Len(t, incl.Data, len(data))
		if len(data) > 0 {
			assert.Equal(t, data, incl.Data)
		}
	}
	assert.Equal(t, 3, node.Requests(MethodCreateBlob))
	assert.Equal(t, 3, node.Requests(MethodGetBlobData))
}

func TestDispatchScenario(t *testing.T) {
	srv := rpcServer(t, MethodCreateBlob, `{"result":{"versionhash":"aa1234"},"error":null,"id":"1"}`)
	node := testnode.New()
	defer node.Close()

	resp, err := newTestClient(srv.URL).DispatchBlob(context.Background(), 1, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)
	assert.Equal(t, "aa1234", resp.BlobID)

	// The request carries the hex payload under "data".
	_, err = newTestClient(node.URL()).DispatchBlob(context.Background(), 1, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":"deadbeef"}`, string(node.LastParams(MethodCreateBlob)))
}

func TestFetchScenario(t *testing.T) {
	node := testnode.New()
	defer node.Close()
	node.Put("1234", []byte{0xDE, 0xAD, 0xBE, 0xEF})

	incl, err := newTestClient(node.URL()).GetInclusionData(context.Background(), "aa1234")
	require.NoError(t, err)
	require.NotNil(t, incl)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, incl.Data)
	assert.JSONEq(t, `{"versionhash_or_txid":"1234"}`, string(node.LastParams(MethodGetBlobData)))
}

func TestFetchNoRecord(t *testing.T) {
	for _, body := range []string{
		`{"result":{"data":null},"error":null,"id":"1"}`,
		`{"result":{},"error":null,"id":"1"}`,
		`{"result":null,"error":null,"id":"1"}`,
	} {
		t.Run(body, func(t *testing.T) {
			srv := rpcServer(t, MethodGetBlobData, body)
			incl, err := newTestClient(srv.URL).GetInclusionData(context.Background(), "0xabcd")
			require.NoError(t, err)
			assert.Nil(t, incl)
		})
	}

	node := testnode.New()
	defer node.Close()
	incl, err := newTestClient(node.URL()).GetInclusionData(context.Background(), "0xunknown")
	require.NoError(t, err)
	assert.Nil(t, incl)
}

func TestDispatchRemoteError(t *testing.T) {
	node := testnode.New()
	defer node.Close()
	node.FailMethod(MethodCreateBlob, &RemoteError{Code: -1, Message: "not found"})

	_, err := newTestClient(node.URL()).DispatchBlob(context.Background(), 1, []byte{1})
	daErr := requireDAError(t, err, KindRemote)
	assert.Equal(t, "not found", err.Error())

	var remote *RemoteError
	require.True(t, errors.As(daErr, &remote))
	assert.Equal(t, -1, remote.Code)
}

func TestRemoteErrorWinsOverResult(t *testing.T) {
	srv := rpcServer(t, MethodCreateBlob,
		`{"result":{"versionhash":"aa1234"},"error":{"code":-5,"message":"blob rejected"},"id":"1"}`)
	_, err := newTestClient(srv.URL).DispatchBlob(context.Background(), 1, []byte{1})
	requireDAError(t, err, KindRemote)
	assert.Equal(t, "blob rejected", err.Error())

	srv = rpcServer(t, MethodGetBlobData,
		`{"result":{"data":"deadbeef"},"error":{"code":-5,"message":"pruned"},"id":"1"}`)
	incl, err := newTestClient(srv.URL).GetInclusionData(context.Background(), "0x1234")
	requireDAError(t, err, KindRemote)
	assert.Nil(t, incl)
	assert.Equal(t, "pruned", err.Error())
}

func TestFetchRemoteErrorDefaultMessage(t *testing.T) {
	srv := rpcServer(t, MethodGetBlobData, `{"result":null,"error":{"code":-5},"id":"1"}`)
	_, err := newTestClient(srv.URL).GetInclusionData(context.Background(), "0x1234")
	requireDAError(t, err, KindRemote)
	assert.Equal(t, "Unknown error", err.Error())
}

func TestFetchDecodeError(t *testing.T) {
	srv := rpcServer(t, MethodGetBlobData, `{"result":{"data":"not hex"},"error":null,"id":"1"}`)
	incl, err := newTestClient(srv.URL).GetInclusionData(context.Background(), "0x1234")
	requireDAError(t, err, KindDecode)
	assert.Nil(t, incl)
}

func TestFetchMalformedResult(t *testing.T) {
	for _, body := range []string{
		`{"result":"deadbeef","error":null,"id":"1"}`,
		`{"result":{"data":42},"error":null,"id":"1"}`,
	} {
		t.Run(body, func(t *testing.T) {
			srv := rpcServer(t, MethodGetBlobData, body)
			incl, err := newTestClient(srv.URL).GetInclusionData(context.Background(), "0x1234")
			requireDAError(t, err, KindTransport)
			assert.Nil(t, incl)
		})
	}
}

func TestFetchInvalidBlobID(t *testing.T) {
	node := testnode.New()
	defer node.Close()
	client := newTestClient(node.URL())

	for _, id := range []string{"", "a", "é"} {
		incl, err := client.GetInclusionData(context.Background(), id)
		requireDAError(t, err, KindInvalidInput)
		assert.Nil(t, incl)
	}
	assert.Equal(t, 0, node.Requests(MethodGetBlobData))

	// The prefix is two characters, whatever their encoded width.
	node.Put("12", []byte{0x12})
	incl, err := client.GetInclusionData(context.Background(), "aé12")
	require.NoError(t, err)
	require.NotNil(t, incl)
	assert.Equal(t, []byte{0x12}, incl.Data)
	assert.JSONEq(t, `{"versionhash_or_txid":"12"}`, string(node.LastParams(MethodGetBlobData)))

	// Exactly the prefix is a valid, empty lookup key.
	incl, err = client.GetInclusionData(context.Background(), "0x")
	require.NoError(t, err)
	assert.Nil(t, incl)
	assert.JSONEq(t, `{"versionhash_or_txid":""}`, string(node.LastParams(MethodGetBlobData)))
}

func TestTransportErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		client := newTestClient(url)
		_, err := client.DispatchBlob(ctx, 1, []byte{1})
		requireDAError(t, err, KindTransport)
		_, err = client.GetInclusionData(ctx, "0x1234")
		requireDAError(t, err, KindTransport)
	})

	t.Run("bad credentials", func(t *testing.T) {
		node := testnode.New(testnode.WithBasicAuth("u", "secret"))
		defer node.Close()

		_, err := newTestClient(node.URL()).DispatchBlob(ctx, 1, []byte{1})
		requireDAError(t, err, KindTransport)
		assert.Contains(t, err.Error(), "401")
		assert.Equal(t, 0, node.Len())
	})

	t.Run("not json", func(t *testing.T) {
		node := testnode.New()
		defer node.Close()
		node.ReplyRaw(MethodCreateBlob, http.StatusOK, "<html>proxy error</html>")

		_, err := newTestClient(node.URL()).DispatchBlob(ctx, 1, []byte{1})
		requireDAError(t, err, KindTransport)
	})

	t.Run("gateway reply", func(t *testing.T) {
		node := testnode.New()
		defer node.Close()
		node.ReplyRaw(MethodGetBlobData, http.StatusServiceUnavailable, `{"message":"Service Unavailable"}`)
		node.ReplyRaw(MethodCreateBlob, http.StatusBadGateway, `{"result":{"versionhash":"aa12"},"error":null}`)

		client := newTestClient(node.URL())
		incl, err := client.GetInclusionData(ctx, "0x1234")
		requireDAError(t, err, KindTransport)
		assert.Nil(t, incl)
		assert.Contains(t, err.Error(), "503")

		_, err = client.DispatchBlob(ctx, 1, []byte{1})
		requireDAError(t, err, KindTransport)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("missing versionhash", func(t *testing.T) {
		srv := rpcServer(t, MethodCreateBlob, `{"result":{},"error":null,"id":"1"}`)
		_, err := newTestClient(srv.URL).DispatchBlob(ctx, 1, []byte{1})
		requireDAError(t, err, KindTransport)
		assert.Contains(t, err.Error(), "versionhash")
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		cfg := DefaultConfig()
		cfg.RPCURL = srv.URL
		cfg.RequestTimeout = 50 * time.Millisecond
		_, err := NewSyscoinClient(cfg, WithLogger(NopLogger)).DispatchBlob(ctx, 1, []byte{1})
		requireDAError(t, err, KindTransport)
	})
}

func TestEmbeddedCredentials(t *testing.T) {
	node := testnode.New(testnode.WithBasicAuth("alice", "hunter22"))
	defer node.Close()

	cfg := DefaultConfig()
	cfg.RPCURL = strings.Replace(node.URL(), "http://", "http://alice:hunter22@", 1)
	client := NewSyscoinClient(cfg, WithLogger(NopLogger))

	_, err := client.DispatchBlob(context.Background(), 1, []byte{1, 2, 3})
	require.NoError(t, err)

	for _, s := range []string{client.String(), fmt.Sprintf("%v", client), fmt.Sprintf("%#v", client)} {
		assert.NotContains(t, s, "hunter22")
		assert.NotContains(t, s, "alice")
		assert.Contains(t, s, node.URL())
	}
}

func TestCloneSharesTransport(t *testing.T) {
	node := testnode.New()
	defer node.Close()

	client := newTestClient(node.URL())
	clone, ok := client.Clone().(*SyscoinClient)
	require.True(t, ok)
	require.NotSame(t, client, clone)
	assert.Same(t, client.rpc, clone.rpc)
	assert.Same(t, client.rpc.HTTPClient(), clone.rpc.HTTPClient())

	// Clones and their source may be used concurrently.
	var wg sync.WaitGroup
	handles := []DataAvailabilityClient{client, clone, clone.Clone()}
	for i, h := range handles {
		wg.Add(1)
		go func(i int, h DataAvailabilityClient) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				data := []byte(fmt.Sprintf("handle %d blob %d", i, j))
				resp, err := h.DispatchBlob(context.Background(), uint32(j), data)
				if !assert.NoError(t, err) {
					return
				}
				incl, err := h.GetInclusionData(context.Background(), resp.BlobID)
				if assert.NoError(t, err) && assert.NotNil(t, incl) {
					assert.Equal(t, data, incl.Data)
				}
			}
		}(i, h)
	}
	wg.Wait()
	assert.Equal(t, 30, node.Len())
}

func TestBlobSizeLimit(t *testing.T) {
	limit, ok := newTestClient("http://localhost:1").BlobSizeLimit()
	assert.False(t, ok)
	assert.Zero(t, limit)
}

func TestConstructionNeverFails(t *testing.T) {
	client := NewSyscoinClient(Config{RPCURL: "::not a url"}, WithLogger(NopLogger))
	require.NotNil(t, client)
	assert.Equal(t, "SyscoinClient{rpc_url: <invalid>}", client.String())

	_, err := client.DispatchBlob(context.Background(), 1, nil)
	requireDAError(t, err, KindTransport)
}

func TestRejectedEndpointIsNeverCalled(t *testing.T) {
	node := testnode.New()
	defer node.Close()

	// A query string is rejected by ParseEndpoint, so nothing may be posted
	// to the node, not even with the credentials stripped.
	cfg := DefaultConfig()
	cfg.RPCURL = strings.Replace(node.URL(), "http://", "http://alice:hunter22@", 1) + "/?wallet=w1"
	require.Error(t, cfg.Validate())
	client := NewSyscoinClient(cfg, WithLogger(NopLogger))

	_, err := client.DispatchBlob(context.Background(), 1, []byte{1})
	requireDAError(t, err, KindTransport)
	assert.Contains(t, err.Error(), "query or fragment")
	assert.NotContains(t, err.Error(), "hunter22")

	_, err = client.GetInclusionData(context.Background(), "0x1234")
	requireDAError(t, err, KindTransport)

	// Blob id validation still comes first.
	_, err = client.GetInclusionData(context.Background(), "a")
	requireDAError(t, err, KindInvalidInput)

	assert.Equal(t, 0, node.Requests(MethodCreateBlob))
	assert.Equal(t, 0, node.Requests(MethodGetBlobData))
	assert.Equal(t, "SyscoinClient{rpc_url: <invalid>}", client.String())
}

func TestSyscoinNEVMMethods(t *testing.T) {
	node := testnode.New(testnode.WithMethods(SyscoinMethodCreateBlob, SyscoinMethodGetBlobData))
	defer node.Close()

	cfg := DefaultConfig()
	cfg.RPCURL = node.URL()
	client := NewSyscoinClient(SyscoinNEVMMethods(cfg), WithLogger(NopLogger))

	resp, err := client.DispatchBlob(context.Background(), 1, []byte("nevm"))
	require.NoError(t, err)
	incl, err := client.GetInclusionData(context.Background(), resp.BlobID)
	require.NoError(t, err)
	require.NotNil(t, incl)
	assert.Equal(t, []byte("nevm"), incl.Data)
	assert.Equal(t, 1, node.Requests(SyscoinMethodCreateBlob))
	assert.Equal(t, 0, node.Requests(MethodCreateBlob))
}

func TestClientExplorerURL(t *testing.T) {
	client := newTestClient("http://localhost:1")
	u, err := client.ExplorerURL("0xabcd")
	require.NoError(t, err)
	assert.Equal(t, "http://poda.tanenbaum.io/vh/abcd", u)
}

func TestLogging(t *testing.T) {
	node := testnode.New()
	defer node.Close()

	logger := &recordingLogger{}
	cfg := DefaultConfig()
	cfg.RPCURL = node.URL()
	cfg.Password = "do-not-log-me"
	client := NewSyscoinClient(cfg, WithLogger(logger))

	resp, err := client.DispatchBlob(context.Background(), 42, []byte("payload-bytes"))
	require.NoError(t, err)
	_, err = client.GetInclusionData(context.Background(), resp.BlobID)
	require.NoError(t, err)
	node.FailMethod(MethodGetBlobData, &RemoteError{Code: -1, Message: "boom"})
	_, err = client.GetInclusionData(context.Background(), resp.BlobID)
	require.Error(t, err)

	out := logger.String()
	assert.Contains(t, out, "batch 42: dispatched 13 bytes as "+resp.BlobID)
	assert.Contains(t, out, "fetched 13 bytes")
	assert.Contains(t, out, "ERROR syscoinda: getblobdata")
	assert.Contains(t, out, "Remote error: boom")
	assert.NotContains(t, out, "payload-bytes")
	assert.NotContains(t, out, "do-not-log-me")
}
