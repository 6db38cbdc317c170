package hedera

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/hashgraph/hedera-sdk-go/v2"
)

// Distinguished execution outcomes. ErrDestinationNotPrepared means the
// destination account cannot receive the token yet; no value left the vault.
// ErrIndeterminate means the transfer was submitted but its receipt could not
// be fetched, so the outcome on the network is unknown.
var (
	ErrDestinationNotPrepared = errors.New("destination account is not associated with the token")
	ErrIndeterminate          = errors.New("transfer submitted but outcome unknown")
)

type OperatorConfig struct {
	Network      string `toml:"network"`
	VaultAccount string `toml:"vault_account"`
}

// TransferExecutor submits value transfers to the network on behalf of the
// vault. Implementations return the network transaction id on success and on
// ErrIndeterminate.
type TransferExecutor interface {
	TransferHbar(ctx context.Context, toAccount string, tinybars int64, memo string) (string, error)
	TransferToken(ctx context.Context, tokenID, toAccount string, amount int64, memo string) (string, error)
}

// Client executes transfers with the operator-signed SDK client.
type Client struct {
	sdkClient *sdk.Client
	vault     sdk.AccountID
}

// NewClient builds the executor. The operator key comes from the environment
// rather than the config file.
func NewClient(cfg OperatorConfig, operatorKey string) (*Client, error) {
	var client *sdk.Client
	switch cfg.Network {
	case "mainnet":
		client = sdk.ClientForMainnet()
	case "testnet":
		client = sdk.ClientForTestnet()
	default:
		return nil, fmt.Errorf("unknown network %q", cfg.Network)
	}

	vault, err := sdk.AccountIDFromString(cfg.VaultAccount)
	if err != nil {
		return nil, fmt.Errorf("invalid vault account id: %w", err)
	}

	key, err := sdk.PrivateKeyFromString(operatorKey)
	if err != nil {
		return nil, fmt.Errorf("invalid operator key: %w", err)
	}
	client.SetOperator(vault, key)

	return &Client{sdkClient: client, vault: vault}, nil
}

func (c *Client) TransferHbar(_ context.Context, toAccount string, tinybars int64, memo string) (string, error) {
	to, err := sdk.AccountIDFromString(toAccount)
	if err != nil {
		return "", fmt.Errorf("invalid destination account: %w", err)
	}

	resp, err := sdk.NewTransferTransaction().
		AddHbarTransfer(c.vault, sdk.HbarFromTinybar(-tinybars)).
		AddHbarTransfer(to, sdk.HbarFromTinybar(tinybars)).
		SetTransactionMemo(memo).
		Execute(c.sdkClient)
	if err != nil {
		return "", classifyExecuteError(err)
	}

	return c.awaitReceipt(resp)
}

func (c *Client) TransferToken(_ context.Context, tokenID, toAccount string, amount int64, memo string) (string, error) {
	token, err := sdk.TokenIDFromString(tokenID)
	if err != nil {
		return "", fmt.Errorf("invalid token id: %w", err)
	}
	to, err := sdk.AccountIDFromString(toAccount)
	if err != nil {
		return "", fmt.Errorf("invalid destination account: %w", err)
	}

	resp, err := sdk.NewTransferTransaction().
		AddTokenTransfer(token, c.vault, -amount).
		AddTokenTransfer(token, to, amount).
		SetTransactionMemo(memo).
		Execute(c.sdkClient)
	if err != nil {
		return "", classifyExecuteError(err)
	}

	return c.awaitReceipt(resp)
}

func (c *Client) awaitReceipt(resp sdk.TransactionResponse) (string, error) {
	txID := resp.TransactionID.String()

	receipt, err := resp.GetReceipt(c.sdkClient)
	if err != nil {
		if isTokenNotAssociated(err) {
			return txID, ErrDestinationNotPrepared
		}
		if strings.Contains(err.Error(), "exceptional receipt status") {
			// The network settled the transaction with a failure status.
			return txID, fmt.Errorf("transfer %s failed: %w", txID, err)
		}
		// The transfer reached the network; only the receipt fetch failed.
		return txID, fmt.Errorf("%w: %s", ErrIndeterminate, txID)
	}

	if receipt.Status != sdk.StatusSuccess {
		if receipt.Status == sdk.StatusTokenNotAssociatedToAccount {
			return txID, ErrDestinationNotPrepared
		}
		return txID, fmt.Errorf("transfer %s failed with status %s", txID, receipt.Status)
	}
	return txID, nil
}

func (c *Client) Close() error {
	return c.sdkClient.Close()
}

func classifyExecuteError(err error) error {
	if isTokenNotAssociated(err) {
		return ErrDestinationNotPrepared
	}
	return fmt.Errorf("transfer execution failed: %w", err)
}

func isTokenNotAssociated(err error) bool {
	return err != nil && strings.Contains(err.Error(), "TOKEN_NOT_ASSOCIATED_TO_ACCOUNT")
}
