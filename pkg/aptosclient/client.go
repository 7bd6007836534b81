/**
 * @description
 * This package provides a read-only client for an Aptos fullnode REST API.
 * It is used to confirm that an adoption certificate NFT was minted by the
 * configured contract before the certificate is attached to an adoption.
 *
 * @notes
 * - Minting happens in the user's wallet; this service never signs anything.
 */
package aptosclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found on chain")
	ErrTransactionFailed   = errors.New("transaction did not succeed on chain")
	ErrContractMismatch    = errors.New("transaction did not interact with the certificate contract")
)

// Client is a client for the Aptos fullnode API.
type Client struct {
	BaseURL    string
	httpClient *http.Client
}

// NewClient creates a new Aptos client, e.g. for https://fullnode.testnet.aptoslabs.com.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Transaction is the subset of a committed transaction the service reads.
type Transaction struct {
	Type      string `json:"type"`
	Hash      string `json:"hash"`
	Sender    string `json:"sender"`
	Success   bool   `json:"success"`
	VMStatus  string `json:"vm_status"`
	Timestamp string `json:"timestamp"`
	Payload   struct {
		Function string `json:"function"`
	} `json:"payload"`
	Events []struct {
		Type string `json:"type"`
	} `json:"events"`
}

// touches reports whether the transaction called or emitted events from the
// given account address.
func (t *Transaction) touches(contract string) bool {
	prefix := strings.ToLower(contract) + "::"
	if strings.HasPrefix(strings.ToLower(t.Payload.Function), prefix) {
		return true
	}
	for _, e := range t.Events {
		if strings.HasPrefix(strings.ToLower(e.Type), prefix) {
			return true
		}
	}
	return false
}

// GetTransactionByHash fetches a committed transaction.
func (c *Client) GetTransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	endpoint := fmt.Sprintf("%s/v1/transactions/by_hash/%s", c.BaseURL, url.PathEscape(hash))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to Aptos: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTransactionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("aptos API error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tx Transaction
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, fmt.Errorf("failed to decode aptos transaction: %w", err)
	}
	return &tx, nil
}

// VerifyMint checks that the transaction succeeded and involved the contract.
func (c *Client) VerifyMint(ctx context.Context, hash, contract string) (*Transaction, error) {
	tx, err := c.GetTransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if tx.Type == "pending_transaction" {
		return nil, ErrTransactionNotFound
	}
	if !tx.Success {
		return nil, fmt.Errorf("%w: %s", ErrTransactionFailed, tx.VMStatus)
	}
	if contract != "" && !tx.touches(contract) {
		return nil, ErrContractMismatch
	}
	return tx, nil
}
