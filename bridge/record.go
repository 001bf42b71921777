package bridge

import (
	"math/big"
	"strconv"

	"imuabridge/amount"
	"imuabridge/config"
	"imuabridge/gateway"
	"imuabridge/types"
)

// buildRecord describes a successful lock/burn for the relayer. Target side
// fields stay pending until the relayer mints.
func buildRecord(a types.BridgeAttempt, p plan, res gateway.TxResult) types.RelayRecord {
	src, _ := config.Describe(a.SourceToken.Network)
	dst, _ := config.Describe(a.TargetToken.Network)

	fee := new(big.Int)
	if f, ok := res.Emitted["fee"]; ok && f != nil {
		fee = f
	}
	received := new(big.Int).Sub(p.units, fee)
	if received.Sign() < 0 {
		received = new(big.Int)
	}

	targetAddress := a.TargetToken.Address
	if targetAddress == "" {
		if addr, err := config.TokenContract(a.TargetToken.Network, a.TargetToken.Symbol); err == nil {
			targetAddress = addr.Hex()
		}
	}

	return types.RelayRecord{
		SourceFromChainID:              strconv.Itoa(src.ChainID),
		SourceFromChainName:            src.Name,
		SourceFromRPCURL:               src.PrimaryRPC(),
		SourceFromAddress:              a.SenderAddress,
		SourceFromTokenName:            a.SourceToken.Symbol,
		SourceFromTokenContractAddress: a.SourceToken.Address,
		SourceFromAmount:               a.Amount,
		SourceFromHandlingFee:          amount.FromBaseUnits(fee, p.decimals),
		SourceFromTxHash:               res.TxHash.Hex(),
		TargetToChainID:                strconv.Itoa(dst.ChainID),
		TargetToChainName:              dst.Name,
		TargetToRPCURL:                 dst.PrimaryRPC(),
		TargetToAddress:                a.ReceiverAddress,
		TargetToTokenName:              a.TargetToken.Symbol,
		TargetToTokenContractAddress:   targetAddress,
		TargetToReceiveAmount:          amount.FromBaseUnits(received, p.decimals),
		TargetToTxHash:                 "",
		TargetToTxStatus:               types.RelayStatusPending,
		CrossBridgeStatus:              types.RelayStatusPending,
	}
}
