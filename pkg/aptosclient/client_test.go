package aptosclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/transactions/by_hash/0xok":
			_, _ = w.Write([]byte(`{"type":"user_transaction","hash":"0xok","success":true,"vm_status":"Executed successfully",
				"payload":{"function":"0xCAFE::tree_nft::mint_certificate"},"events":[]}`))
		case "/v1/transactions/by_hash/0xevent":
			_, _ = w.Write([]byte(`{"type":"user_transaction","hash":"0xevent","success":true,
				"payload":{"function":"0x1::aptos_account::transfer"},"events":[{"type":"0xcafe::tree_nft::MintEvent"}]}`))
		case "/v1/transactions/by_hash/0xfailed":
			_, _ = w.Write([]byte(`{"type":"user_transaction","hash":"0xfailed","success":false,"vm_status":"Move abort",
				"payload":{"function":"0xcafe::tree_nft::mint_certificate"}}`))
		case "/v1/transactions/by_hash/0xother":
			_, _ = w.Write([]byte(`{"type":"user_transaction","hash":"0xother","success":true,
				"payload":{"function":"0x1::coin::transfer"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Transaction not found","error_code":"transaction_not_found"}`))
		}
	}))
}

func TestVerifyMint(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := NewClient(srv.URL + "/")

	tx, err := c.VerifyMint(context.Background(), "0xok", "0xcafe")
	require.NoError(t, err)
	assert.Equal(t, "0xok", tx.Hash)

	_, err = c.VerifyMint(context.Background(), "0xevent", "0xcafe")
	assert.NoError(t, err)

	_, err = c.VerifyMint(context.Background(), "0xfailed", "0xcafe")
	assert.ErrorIs(t, err, ErrTransactionFailed)

	_, err = c.VerifyMint(context.Background(), "0xother", "0xcafe")
	assert.ErrorIs(t, err, ErrContractMismatch)

	_, err = c.VerifyMint(context.Background(), "0xmissing", "0xcafe")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}
