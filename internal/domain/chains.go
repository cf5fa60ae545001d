package domain

// Blockchain identifies a network supported by the wallet service.
type Blockchain string

const (
	ChainEth         Blockchain = "ETH"
	ChainEthSepolia  Blockchain = "ETH-SEPOLIA"
	ChainArb         Blockchain = "ARB"
	ChainArbSepolia  Blockchain = "ARB-SEPOLIA"
	ChainMatic       Blockchain = "MATIC"
	ChainMaticAmoy   Blockchain = "MATIC-AMOY"
)

// NetworkDefault marks a transfer request that stays on the sender's chain.
const NetworkDefault = "default"

// USDCTokenAddress maps each chain to its USDC contract.
// https://developers.circle.com/stablecoins/docs/usdc-on-main-networks
var USDCTokenAddress = map[Blockchain]string{
	ChainEthSepolia: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
	ChainArbSepolia: "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d",
	ChainMaticAmoy:  "0x41e94eb019c0762f9bfcf9fb1e58725bfb0e7582",
	ChainEth:        "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
	ChainArb:        "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
	ChainMatic:      "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359",
}

// USDCTokenID maps each chain to the wallet service's token identifier for USDC.
var USDCTokenID = map[Blockchain]string{
	ChainArbSepolia: "4b8daacc-5f47-5909-a3ba-30d171ebad98",
	ChainMaticAmoy:  "36b6931a-873a-56a8-8a27-b706b17104ee",
}

// CCTPDomain maps each chain to its cross-chain transfer protocol domain id.
var CCTPDomain = map[Blockchain]uint32{
	ChainEth:        0,
	ChainEthSepolia: 0,
	ChainArb:        3,
	ChainArbSepolia: 3,
	ChainMatic:      7,
	ChainMaticAmoy:  7,
}

// TokenMessenger holds the per-chain contract that burns USDC on the source chain.
var TokenMessenger = map[Blockchain]string{
	ChainEth:        "0xbd3fa81b58ba92a82136038b25adec7066af3155",
	ChainEthSepolia: "0x9f3B8679c73C2Fef8b59B4f3444d4e156fb70AA5",
	ChainArb:        "0x19330d10D9Cc8751218eaf51E8885D058642E08A",
	ChainArbSepolia: "0xaCF1ceeF35caAc005e15888dDb8A3515C41B4872",
	ChainMatic:      "0x9daF8c91AEFAE50b9c0E69629D3F6Ca40cA3B3FE",
	ChainMaticAmoy:  "0x9f3B8679c73C2Fef8b59B4f3444d4e156fb70AA5",
}

// MessageTransmitter holds the per-chain contract that mints USDC on the destination chain.
var MessageTransmitter = map[Blockchain]string{
	ChainEth:        "0x0a992d191deec32afe36203ad87d7d289a738f81",
	ChainEthSepolia: "0x7865fAfC2db2093669d92c0F33AeEF291086BEFD",
	ChainArb:        "0xC30362313FBBA5cf9163F0bb16a0e01f01A896ca",
	ChainArbSepolia: "0xaCF1ceeF35caAc005e15888dDb8A3515C41B4872",
	ChainMatic:      "0xF3be9355363857F3e001be68856A2f96b4C39Ba9",
	ChainMaticAmoy:  "0x7865fAfC2db2093669d92c0F33AeEF291086BEFD",
}

// RPCEndpoints builds the node endpoint table for a given Infura project key.
func RPCEndpoints(infuraKey string) map[Blockchain]string {
	return map[Blockchain]string{
		ChainEth:        "https://mainnet.infura.io/v3/" + infuraKey,
		ChainEthSepolia: "https://sepolia.infura.io/v3/" + infuraKey,
		ChainArb:        "https://arbitrum-mainnet.infura.io/v3/" + infuraKey,
		ChainArbSepolia: "https://arbitrum-sepolia.infura.io/v3/" + infuraKey,
		ChainMatic:      "https://polygon-mainnet.infura.io/v3/" + infuraKey,
		ChainMaticAmoy:  "https://polygon-amoy.infura.io/v3/" + infuraKey,
	}
}

// Valid reports whether the chain is one the service knows about.
func (b Blockchain) Valid() bool {
	_, ok := USDCTokenAddress[b]
	return ok
}

// DisplayName returns the human-readable network name used in chat messages.
func (b Blockchain) DisplayName() string {
	switch b {
	case ChainEth:
		return "Ethereum"
	case ChainEthSepolia:
		return "Ethereum Sepolia"
	case ChainArb:
		return "Arbitrum"
	case ChainArbSepolia:
		return "Arbitrum Sepolia"
	case ChainMatic:
		return "Polygon"
	case ChainMaticAmoy:
		return "Polygon Amoy"
	default:
		return string(b)
	}
}
