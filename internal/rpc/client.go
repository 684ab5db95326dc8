// Package rpc implements the ledger.Transport boundary over an EVM-style
// JSON-RPC endpoint using go-ethereum. It owns the wire concerns the engine
// core deliberately does not: ABI encoding, transaction signing and event
// topic filtering.
package rpc

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/veralabs/resonance/pkg/ledger"
)

// Config describes the RPC endpoint and contract deployment.
type Config struct {
	RPCURL  string
	ChainID int64

	// PrivateKeyHex is the signing key, with or without 0x prefix. Empty
	// leaves the transport in read-only mode: reads work, submits fail as
	// unconfigured.
	PrivateKeyHex string

	CredentialContract string
	ScoreContract      string
	RegistryContract   string
}

// Client implements ledger.Transport over go-ethereum.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int

	key    *ecdsa.PrivateKey // nil in read-only mode
	signer common.Address

	credential common.Address
	score      common.Address
	registry   common.Address

	identityABI abi.ABI
	scoreABI    abi.ABI
	registryABI abi.ABI
}

// New dials the RPC endpoint and prepares contract bindings. Dialing an HTTP
// endpoint is lazy, so a down node surfaces on the first call rather than
// here.
func New(cfg Config) (*Client, error) {
	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger RPC at %s: %w", cfg.RPCURL, err)
	}

	c := &Client{
		eth:     eth,
		chainID: big.NewInt(cfg.ChainID),
	}

	if cfg.PrivateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid signing key: %w", err)
		}
		c.key = key
		c.signer = crypto.PubkeyToAddress(key.PublicKey)
	}

	c.credential = common.HexToAddress(cfg.CredentialContract)
	c.score = common.HexToAddress(cfg.ScoreContract)
	c.registry = common.HexToAddress(cfg.RegistryContract)

	if c.identityABI, err = abi.JSON(strings.NewReader(identityABIJSON)); err != nil {
		return nil, fmt.Errorf("failed to parse identity ABI: %w", err)
	}
	if c.scoreABI, err = abi.JSON(strings.NewReader(scoreABIJSON)); err != nil {
		return nil, fmt.Errorf("failed to parse score ABI: %w", err)
	}
	if c.registryABI, err = abi.JSON(strings.NewReader(registryABIJSON)); err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}

	return c, nil
}

// SignerAddress returns the normalized signing principal address, or "" in
// read-only mode.
func (c *Client) SignerAddress() string {
	if c.key == nil {
		return ""
	}
	return strings.ToLower(c.signer.Hex())
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// TipHeight implements ledger.Transport.
func (c *Client) TipHeight(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// FeeRate implements ledger.Transport.
func (c *Client) FeeRate(ctx context.Context) (uint64, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return 0, err
	}
	return price.Uint64(), nil
}

// Balance implements ledger.Transport.
func (c *Client) Balance(ctx context.Context, address string) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
}

// PendingSequence implements ledger.Transport.
func (c *Client) PendingSequence(ctx context.Context, address string) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, common.HexToAddress(address))
}

// CredentialBalance implements ledger.Transport.
func (c *Client) CredentialBalance(ctx context.Context, owner string) (int, error) {
	out, err := c.call(ctx, c.credential, c.identityABI, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return 0, err
	}
	return int(out[0].(*big.Int).Int64()), nil
}

// CredentialByIndex implements ledger.Transport.
func (c *Client) CredentialByIndex(ctx context.Context, owner string, index int) (int64, error) {
	out, err := c.call(ctx, c.credential, c.identityABI, "tokenOfOwnerByIndex",
		common.HexToAddress(owner), big.NewInt(int64(index)))
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Int64(), nil
}

// TransferLogs implements ledger.Transport. Transfer topics are all indexed:
// [signature, from, to, tokenId].
func (c *Client) TransferLogs(ctx context.Context, to string, fromHeight, toHeight uint64) ([]ledger.TransferLog, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromHeight),
		ToBlock:   new(big.Int).SetUint64(toHeight),
		Addresses: []common.Address{c.credential},
		Topics: [][]common.Hash{
			{c.identityABI.Events["Transfer"].ID},
			nil, // from: any
			{addressTopic(to)},
		},
	}

	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	transfers := make([]ledger.TransferLog, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) < 4 {
			continue
		}
		transfers = append(transfers, ledger.TransferLog{
			TokenID: l.Topics[3].Big().Int64(),
			To:      strings.ToLower(common.BytesToAddress(l.Topics[2].Bytes()).Hex()),
			Height:  l.BlockNumber,
			TxRef:   ledger.TxRef(l.TxHash.Hex()),
		})
	}
	return transfers, nil
}

// Score implements ledger.Transport.
func (c *Client) Score(ctx context.Context, address string) (int, error) {
	out, err := c.call(ctx, c.score, c.scoreABI, "getResonance", common.HexToAddress(address))
	if err != nil {
		return 0, err
	}
	return int(out[0].(*big.Int).Int64()), nil
}

// InteractionLogs implements ledger.Transport. The initiator sits in topic 1,
// the responder in topic 2; one query filters exactly one of them.
func (c *Client) InteractionLogs(ctx context.Context, role ledger.EventRole, address string, fromHeight uint64) ([]ledger.InteractionLog, error) {
	event := c.registryABI.Events["InteractionRecorded"]

	topics := [][]common.Hash{{event.ID}}
	switch role {
	case ledger.RoleInitiator:
		topics = append(topics, []common.Hash{addressTopic(address)})
	case ledger.RoleResponder:
		topics = append(topics, nil, []common.Hash{addressTopic(address)})
	default:
		return nil, fmt.Errorf("unknown event role: %q", role)
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromHeight),
		Addresses: []common.Address{c.registry},
		Topics:    topics,
	}

	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	interactions := make([]ledger.InteractionLog, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) < 4 {
			continue
		}

		unpacked, err := c.registryABI.Unpack("InteractionRecorded", l.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode interaction event %s: %w", l.TxHash.Hex(), err)
		}

		interactions = append(interactions, ledger.InteractionLog{
			Initiator: strings.ToLower(common.BytesToAddress(l.Topics[1].Bytes()).Hex()),
			Responder: strings.ToLower(common.BytesToAddress(l.Topics[2].Bytes()).Hex()),
			Type:      int(unpacked[0].(uint8)),
			Timestamp: unpacked[3].(*big.Int).Int64(),
			ContentID: l.Topics[3].Hex(),
			TxRef:     ledger.TxRef(l.TxHash.Hex()),
			Height:    l.BlockNumber,
		})
	}
	return interactions, nil
}

// SubmitMint implements ledger.Transport.
func (c *Client) SubmitMint(ctx context.Context, req ledger.MintRequest) (ledger.TxRef, error) {
	data, err := c.identityABI.Pack("mintIdentity", common.HexToAddress(req.To))
	if err != nil {
		return "", fmt.Errorf("failed to encode mint call: %w", err)
	}
	return c.sendTx(ctx, "mint", c.credential, data, req.Sequence, req.GasLimit, req.FeeCap, req.TipCap)
}

// SubmitScoreAdjust implements ledger.Transport.
func (c *Client) SubmitScoreAdjust(ctx context.Context, req ledger.ScoreAdjustRequest) (ledger.TxRef, error) {
	data, err := c.scoreABI.Pack("adminAdjust", common.HexToAddress(req.Principal), big.NewInt(int64(req.Score)))
	if err != nil {
		return "", fmt.Errorf("failed to encode score adjust call: %w", err)
	}
	return c.sendTx(ctx, "score adjust", c.score, data, req.Sequence, req.GasLimit, req.FeeCap, req.TipCap)
}

// SubmitInteraction implements ledger.Transport.
func (c *Client) SubmitInteraction(ctx context.Context, req ledger.InteractionRequest) (ledger.TxRef, error) {
	data, err := c.registryABI.Pack("recordInteraction",
		common.HexToAddress(req.Initiator),
		common.HexToAddress(req.Responder),
		req.ContentID,
		uint8(req.Type),
		new(big.Int).SetUint64(req.InitiatorWeight),
		new(big.Int).SetUint64(req.ResponderWeight),
	)
	if err != nil {
		return "", fmt.Errorf("failed to encode interaction call: %w", err)
	}
	return c.sendTx(ctx, "interaction record", c.registry, data, req.Sequence, req.GasLimit, req.FeeCap, req.TipCap)
}

func (c *Client) call(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s call: %w", method, err)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	return contractABI.Unpack(method, out)
}

func (c *Client) sendTx(ctx context.Context, op string, to common.Address, data []byte, sequence, gasLimit, feeCap, tipCap uint64) (ledger.TxRef, error) {
	if c.key == nil {
		return "", ledger.Unconfigured(op, "no signing key configured")
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     sequence,
		GasTipCap: new(big.Int).SetUint64(tipCap),
		GasFeeCap: new(big.Int).SetUint64(feeCap),
		Gas:       gasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s transaction: %w", op, err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", classifySubmitError(op, err)
	}
	return ledger.TxRef(signed.Hash().Hex()), nil
}

// addressTopic left-pads an address into a 32-byte event topic.
func addressTopic(address string) common.Hash {
	return common.BytesToHash(common.HexToAddress(address).Bytes())
}
