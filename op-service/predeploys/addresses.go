package predeploys

import "github.com/ethereum/go-ethereum/common"

const (
	L2ToL1MessagePasser = "0x4200000000000000000000000000000000000016"
)

// L2ToL1MessagePasserAddr is the predeploy whose storage root is committed to in every L2 output root.
var L2ToL1MessagePasserAddr = common.HexToAddress(L2ToL1MessagePasser)
