package syscoinda

import (
	"encoding/hex"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// Protocol constants.
const (
	// MethodCreateBlob is the default RPC used to submit a blob.
	MethodCreateBlob = "createblob"

	// MethodGetBlobData is the default RPC used to look a blob up.
	MethodGetBlobData = "getblobdata"

	// SyscoinMethodCreateBlob and SyscoinMethodGetBlobData are the names
	// Syscoin Core exposes for its NEVM blob RPCs.
	SyscoinMethodCreateBlob  = "syscoincreatenevmblob"
	SyscoinMethodGetBlobData = "getnevmblobdata"

	// BlobIDPrefixLen is the number of leading characters of a blob ID that
	// are not part of the node's lookup key. The prefix is carried through
	// verbatim and never interpreted.
	BlobIDPrefixLen = 2
)

// SyscoinNEVMMethods returns a copy of cfg using Syscoin Core's NEVM blob
// method names.
func SyscoinNEVMMethods(cfg Config) Config {
	cfg.CreateBlobMethod = SyscoinMethodCreateBlob
	cfg.GetBlobDataMethod = SyscoinMethodGetBlobData
	return cfg
}

// createBlobParams are the params of the create blob RPC.
type createBlobParams struct {
	Data string `json:"data"`
}

// createBlobResult is the result of the create blob RPC.
type createBlobResult struct {
	VersionHash *string `json:"versionhash"`
}

// blobDataParams are the params of the get blob data RPC.
type blobDataParams struct {
	VersionHashOrTxID string `json:"versionhash_or_txid"`
}

// blobDataResult is the result of the get blob data RPC. A nil Data means the
// node has no data for the blob (yet).
type blobDataResult struct {
	Data *string `json:"data"`
}

// EncodeBlob returns the lowercase hex encoding of data, without a 0x prefix.
func EncodeBlob(data []byte) string {
	return hex.EncodeToString(data)
}

// DecodeBlob decodes a hex string as returned by the node.
func DecodeBlob(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "decoding blob data")
	}
	return b, nil
}

// LookupKey returns the key the node knows a blob by: the blob ID with its
// BlobIDPrefixLen-character prefix stripped. The prefix is counted in
// characters, not bytes.
func LookupKey(blobID string) (string, error) {
	if utf8.RuneCountInString(blobID) < BlobIDPrefixLen {
		return "", &DAError{
			Kind: KindInvalidInput,
			Err: errors.Newf("blob id %q is shorter than its %d-character prefix",
				blobID, BlobIDPrefixLen),
		}
	}
	key := blobID
	for i := 0; i < BlobIDPrefixLen; i++ {
		_, size := utf8.DecodeRuneInString(key)
		key = key[size:]
	}
	return key, nil
}
