package metrics

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	opmetrics "github.com/mantlenetworkio/ccip-gateway/op-service/metrics"
)

type NoopMetrics struct {
	opmetrics.NoopRPCClientMetrics
}

var _ Metricer = NoopMetrics{}

func (n NoopMetrics) RecordInfo(version string) {}

func (n NoopMetrics) RecordUp() {}

func (n NoopMetrics) RecordDispatch(selector string, status int, duration time.Duration) {}

func (n NoopMetrics) RecordProofs(slots int, duration time.Duration) {}

func (n NoopMetrics) RecordProvenBlock(portal common.Address, number uint64) {}

func (n NoopMetrics) RecordL2Sources(count int) {}

func (n NoopMetrics) RecordRPCStall(endpoint string) {}

func (n NoopMetrics) RecordRPCFailure(endpoint string) {}

func (n NoopMetrics) CacheAdd(label string, cacheSize int, evicted bool) {}

func (n NoopMetrics) CacheGet(label string, hit bool) {}

func (n NoopMetrics) RecordHTTPRequest(route string, method string, status int, duration time.Duration) {}

func (n NoopMetrics) RecordRateLimited() {}

func (n NoopMetrics) RecordStorageRequest(commands int, slots int) {}
