package morpho

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"yieldopt/internal/application/port"
	"yieldopt/internal/domain"
	"yieldopt/internal/domain/model"
)

// DefaultEndpoint is the public Morpho Blue GraphQL API.
const DefaultEndpoint = "https://blue-api.morpho.org/graphql"

const marketQuery = `query {
    markets {
        items {
            uniqueKey
            lltv
            oracleAddress
            irmAddress
            loanAsset { address symbol decimals }
            collateralAsset { address symbol decimals }
            state {
                borrowApy
                borrowAssets
                borrowAssetsUsd
                supplyApy
                supplyAssets
                supplyAssetsUsd
                fee
                utilization
            }
        }
    }
}`

// Client fetches market state from the Morpho market directory.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type asset struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type marketState struct {
	BorrowApy       nullFloat `json:"borrowApy"`
	SupplyApy       nullFloat `json:"supplyApy"`
	SupplyAssetsUsd nullFloat `json:"supplyAssetsUsd"`
	BorrowAssetsUsd nullFloat `json:"borrowAssetsUsd"`
	Fee             nullFloat `json:"fee"`
	Utilization     nullFloat `json:"utilization"`
}

type marketItem struct {
	UniqueKey       string       `json:"uniqueKey"`
	Lltv            nullFloat    `json:"lltv"`
	OracleAddress   string       `json:"oracleAddress"`
	IrmAddress      string       `json:"irmAddress"`
	LoanAsset       *asset       `json:"loanAsset"`
	CollateralAsset *asset       `json:"collateralAsset"`
	State           *marketState `json:"state"`
}

type envelope struct {
	Data *struct {
		Markets *struct {
			Items *[]marketItem `json:"items"`
		} `json:"markets"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Fetch issues one query for every known market and normalizes the response
// into snapshots. It returns either the full list or an error, never a
// truncated one, and persists nothing.
func (c *Client) Fetch(ctx context.Context) ([]model.MarketSnapshot, error) {
	body, err := json.Marshal(map[string]string{"query": marketQuery})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: morpho api http %d", domain.ErrTransport, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrSchema, err)
	}
	if env.Data == nil {
		if len(env.Errors) > 0 {
			return nil, fmt.Errorf("%w: morpho api: %s", domain.ErrTransport, env.Errors[0].Message)
		}
		return nil, fmt.Errorf("%w: response has no data", domain.ErrSchema)
	}
	if env.Data.Markets == nil || env.Data.Markets.Items == nil {
		return nil, fmt.Errorf("%w: response missing markets.items", domain.ErrSchema)
	}

	items := *env.Data.Markets.Items
	snaps := make([]model.MarketSnapshot, 0, len(items))
	for _, it := range items {
		snaps = append(snaps, it.toSnapshot())
	}
	return snaps, nil
}

func (it marketItem) toSnapshot() model.MarketSnapshot {
	snap := model.MarketSnapshot{
		MarketKey:     it.UniqueKey,
		OracleAddress: it.OracleAddress,
		IrmAddress:    it.IrmAddress,
		Lltv:          normalizeLltv(float64(it.Lltv)),
	}
	if it.LoanAsset != nil {
		snap.TokenSymbol = it.LoanAsset.Symbol
		snap.TokenAddress = it.LoanAsset.Address
		snap.LoanDecimals = it.LoanAsset.Decimals
	}
	if it.CollateralAsset != nil {
		snap.CollateralToken = it.CollateralAsset.Address
	}
	if it.State != nil {
		snap.SupplyAPY = nonNegative(float64(it.State.SupplyApy))
		snap.BorrowAPY = nonNegative(float64(it.State.BorrowApy))
		snap.Utilization = clamp01(float64(it.State.Utilization))
		snap.MaxSupply = nonNegative(float64(it.State.SupplyAssetsUsd))
		snap.Risk = nonNegative(float64(it.State.Fee))
	}
	return snap
}

// nullFloat decodes JSON numbers, numeric strings, and null. Null and
// malformed values normalize to 0 at this boundary so downstream fields are
// never absent or NaN.
type nullFloat float64

func (f *nullFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*f = 0
		return nil
	}
	*f = nullFloat(v)
	return nil
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// The API reports LLTV as a 1e18-scaled integer; persisted values honor the
// [0,1] invariant.
func normalizeLltv(v float64) float64 {
	if v > 1 {
		v /= 1e18
	}
	return clamp01(v)
}

var _ port.MarketSource = (*Client)(nil)
