package api

import (
	"math/big"
	"net/http"
	"sort"
	"time"

	"github.com/fluxswap/gateway/domain"
)

// chainMeta enriches a bare chain ID with the human-facing details the
// on-chain aggregator adapters themselves have no reason to carry.
type chainMeta struct {
	Name        string `json:"name"`
	ExplorerURL string `json:"explorerUrl"`
}

var enrichChains = map[uint64]chainMeta{
	1:        {Name: "Ethereum", ExplorerURL: "https://etherscan.io"},
	10:       {Name: "Optimism", ExplorerURL: "https://optimistic.etherscan.io"},
	56:       {Name: "BNB Smart Chain", ExplorerURL: "https://bscscan.com"},
	137:      {Name: "Polygon", ExplorerURL: "https://polygonscan.com"},
	8453:     {Name: "Base", ExplorerURL: "https://basescan.org"},
	42161:    {Name: "Arbitrum One", ExplorerURL: "https://arbiscan.io"},
	43114:    {Name: "Avalanche C-Chain", ExplorerURL: "https://snowtrace.io"},
	59144:    {Name: "Linea", ExplorerURL: "https://lineascan.build"},
	534352:   {Name: "Scroll", ExplorerURL: "https://scrollscan.com"},
	7777777:  {Name: "Zora", ExplorerURL: "https://explorer.zora.energy"},
}

type chainSummary struct {
	ChainID     uint64 `json:"chainId"`
	Name        string `json:"name,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// handleSupportedChains reports the union of every registered EVM and
// meta-aggregator adapter's supported chains, enriched with display metadata
// where known.
func (s *Server) handleSupportedChains(w http.ResponseWriter, r *http.Request) {
	seen := make(map[uint64]struct{})
	for _, a := range s.reg.EvmAggregators() {
		for _, c := range a.GetSupportedChains() {
			seen[c] = struct{}{}
		}
	}
	for _, m := range s.reg.MetaAggregators() {
		from, to := m.GetSupportedChains()
		for _, c := range from {
			seen[c] = struct{}{}
		}
		for _, c := range to {
			seen[c] = struct{}{}
		}
	}

	chains := make([]chainSummary, 0, len(seen))
	for id := range seen {
		summary := chainSummary{ChainID: id}
		if meta, ok := enrichChains[id]; ok {
			summary.Name = meta.Name
			summary.ExplorerURL = meta.ExplorerURL
		}
		chains = append(chains, summary)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].ChainID < chains[j].ChainID })

	writeSuccess(w, chains)
}

// handleAggregators reports which EVM aggregator adapters support a given
// chain, taken from the "chainId" query parameter.
func (s *Server) handleAggregators(w http.ResponseWriter, r *http.Request) {
	chainID, ok := new(big.Int).SetString(r.URL.Query().Get("chainId"), 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid or missing chainId query parameter", nil)
		return
	}

	names := make([]string, 0)
	for _, a := range s.reg.EvmAggregators() {
		if a.SupportsChain(chainID.Uint64()) {
			names = append(names, a.Name())
		}
	}
	sort.Strings(names)
	writeSuccess(w, map[string]interface{}{"chainId": chainID.Uint64(), "aggregators": names})
}

// handleHealth reports the gateway's own liveness, independent of any
// downstream aggregator's health (see health.Monitor for that).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// handleAnalyze classifies a swap described by query parameters without
// requesting a quote, mirroring handleQuote's classification step.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	srcChain, _ := new(big.Int).SetString(q.Get("sourceChain"), 10)
	dstChain, _ := new(big.Int).SetString(q.Get("destinationChain"), 10)
	if srcChain == nil {
		srcChain = big.NewInt(0)
	}
	if dstChain == nil {
		dstChain = srcChain
	}

	req := domain.UniversalSwapRequest{
		Source: domain.ChainRef{
			Chain:     srcChain.Uint64(),
			Ecosystem: domain.Ecosystem(stringOr(q.Get("sourceEcosystem"), string(domain.EcosystemEVM))),
			Standard:  domain.TokenStandard(stringOr(q.Get("sourceStandard"), string(domain.TokenStandardERC20))),
		},
		Destination: domain.ChainRef{
			Chain:     dstChain.Uint64(),
			Ecosystem: domain.Ecosystem(stringOr(q.Get("destinationEcosystem"), string(domain.EcosystemEVM))),
			Standard:  domain.TokenStandard(stringOr(q.Get("destinationStandard"), string(domain.TokenStandardERC20))),
		},
		SellToken: stringOr(q.Get("sellToken"), "0x0"),
		BuyToken:  stringOr(q.Get("buyToken"), "0x1"),
		Taker:     stringOr(q.Get("taker"), "0x0"),
	}

	classification, err := s.classifier.Classify(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not classify swap request", err)
		return
	}
	writeSuccess(w, map[string]interface{}{
		"swapType": classification.SwapType,
		"category": classification.Category,
	})
}

// handleEcosystems reports the static catalogue of ecosystems this gateway
// recognizes, regardless of which adapters are currently registered.
func (s *Server) handleEcosystems(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, []domain.Ecosystem{
		domain.EcosystemEVM,
		domain.EcosystemSolana,
		domain.EcosystemCosmos,
		domain.EcosystemBitcoin,
		domain.EcosystemSubstrate,
		domain.EcosystemNear,
		domain.EcosystemTerra,
		domain.EcosystemAvalanche,
		domain.EcosystemThorchain,
		domain.EcosystemMaya,
	})
}

func stringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
