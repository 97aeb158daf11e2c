package metrics

import (
	"time"

	"github.com/mantlenetworkio/ccip-gateway/op-gateway/ccip"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/proofs"
	"github.com/mantlenetworkio/ccip-gateway/op-service/client"
)

type Metricer interface {
	RecordInfo(version string)
	RecordUp()

	ccip.Metricer
	proofs.Metricer
	proofs.RegistryMetricer
	client.FallbackMetricer

	RecordHTTPRequest(route string, method string, status int, duration time.Duration)
	RecordRateLimited()
	RecordStorageRequest(commands int, slots int)
}
