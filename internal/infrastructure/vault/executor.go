package vault

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"yieldopt/internal/application/port"
	"yieldopt/internal/domain/model"
)

// reallocateABI mirrors the MetaMorpho vault's
// reallocate(MarketAllocation[]) entry point.
const reallocateABI = `[{"inputs":[{"components":[{"components":[{"internalType":"address","name":"loanToken","type":"address"},{"internalType":"address","name":"collateralToken","type":"address"},{"internalType":"address","name":"oracle","type":"address"},{"internalType":"address","name":"irm","type":"address"},{"internalType":"uint256","name":"lltv","type":"uint256"}],"internalType":"struct MarketParams","name":"marketParams","type":"tuple"},{"internalType":"uint256","name":"assets","type":"uint256"}],"internalType":"struct MarketAllocation[]","name":"allocations","type":"tuple[]"}],"name":"reallocate","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

const defaultGasBuffer = 50_000

type marketParams struct {
	LoanToken       common.Address
	CollateralToken common.Address
	Oracle          common.Address
	Irm             common.Address
	Lltv            *big.Int
}

type marketAllocation struct {
	MarketParams marketParams
	Assets       *big.Int
}

// Executor submits allocation decisions to the vault contract.
type Executor struct {
	client    *ethclient.Client
	abi       abi.ABI
	vault     common.Address
	from      common.Address
	key       *ecdsa.PrivateKey
	gasBuffer uint64
}

func NewExecutor(rpcURL, vaultAddress, privateKeyHex string, gasBuffer uint64) (*Executor, error) {
	parsed, err := abi.JSON(strings.NewReader(reallocateABI))
	if err != nil {
		return nil, fmt.Errorf("parse reallocate abi: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	if gasBuffer == 0 {
		gasBuffer = defaultGasBuffer
	}
	return &Executor{
		client:    client,
		abi:       parsed,
		vault:     common.HexToAddress(vaultAddress),
		from:      crypto.PubkeyToAddress(key.PublicKey),
		key:       key,
		gasBuffer: gasBuffer,
	}, nil
}

func (e *Executor) Close() error {
	e.client.Close()
	return nil
}

// Reallocate maps the non-zero allocation lines onto the on-chain call:
// static-call simulation first, then gas estimate plus a fixed buffer, next
// pending nonce, sign, send, wait for the receipt. Success is inclusion with
// status 1.
func (e *Executor) Reallocate(ctx context.Context, snaps []model.MarketSnapshot, dec model.AllocationDecision) (string, error) {
	allocs := buildAllocations(snaps, dec)
	if len(allocs) == 0 {
		return "", nil
	}

	data, err := e.abi.Pack("reallocate", allocs)
	if err != nil {
		return "", fmt.Errorf("pack reallocate: %w", err)
	}

	msg := ethereum.CallMsg{From: e.from, To: &e.vault, Data: data}
	if _, err := e.client.CallContract(ctx, msg, nil); err != nil {
		return "", fmt.Errorf("reallocate simulation reverted: %w", err)
	}

	gas, err := e.client.EstimateGas(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}
	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}
	chainID, err := e.client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("chain id: %w", err)
	}

	tx := types.NewTransaction(nonce, e.vault, big.NewInt(0), gas+e.gasBuffer, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), e.key)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}
	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, e.client, signed)
	if err != nil {
		return "", fmt.Errorf("wait receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return signed.Hash().Hex(), fmt.Errorf("reallocate tx %s reverted", signed.Hash().Hex())
	}
	return signed.Hash().Hex(), nil
}

// buildAllocations turns non-zero decision lines into MarketAllocation
// values. Amounts are USD-denominated; assets assume a USD-stable loan token
// and are scaled by its decimals.
func buildAllocations(snaps []model.MarketSnapshot, dec model.AllocationDecision) []marketAllocation {
	byKey := make(map[string]model.MarketSnapshot, len(snaps))
	for _, s := range snaps {
		byKey[s.MarketKey] = s
	}

	out := make([]marketAllocation, 0, len(dec.Lines))
	for _, line := range dec.Lines {
		if line.Amount <= 0 {
			continue
		}
		snap, ok := byKey[line.MarketKey]
		if !ok {
			continue
		}
		out = append(out, marketAllocation{
			MarketParams: marketParams{
				LoanToken:       common.HexToAddress(snap.TokenAddress),
				CollateralToken: common.HexToAddress(snap.CollateralToken),
				Oracle:          common.HexToAddress(snap.OracleAddress),
				Irm:             common.HexToAddress(snap.IrmAddress),
				Lltv:            lltvWad(snap.Lltv),
			},
			Assets: tokenUnits(line.Amount, snap.LoanDecimals),
		})
	}
	return out
}

// lltvWad rescales the normalized [0,1] LLTV back to the 1e18 fixed-point
// representation the contract expects.
func lltvWad(lltv float64) *big.Int {
	wad := new(big.Float).Mul(big.NewFloat(lltv), big.NewFloat(1e18))
	out, _ := wad.Int(nil)
	return out
}

func tokenUnits(amount float64, decimals int) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(math.Pow10(decimals)))
	out, _ := scaled.Int(nil)
	return out
}

var _ port.Executor = (*Executor)(nil)
