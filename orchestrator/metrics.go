// orchestrator/metrics.go
// Derives the outcome-level timings from stage results. Purely per-request:
// total = prefill + decode on the disaggregated path, or the reported single
// generation time on the fallback path. Tokens/sec is passed through from
// the decode stage, never recomputed here. Cross-request aggregation lives
// in the event hub's dashboard stats, not in outcomes.

package orchestrator

import "splitserve/shared"

func disaggregatedOutcome(req shared.GenerateRequest, prefillSrv, decodeSrv shared.ServerDescriptor, pre *shared.PrefillResult, gen *shared.GenerationResult) *shared.RequestOutcome {
	return &shared.RequestOutcome{
		RequestID:       req.RequestID,
		Response:        gen.Text,
		Method:          shared.MethodDisaggregated,
		PrefillServerID: prefillSrv.ID,
		DecodeServerID:  decodeSrv.ID,
		PrefillTime:     pre.PrefillTime,
		DecodeTime:      gen.DecodeTime,
		TotalTime:       pre.PrefillTime + gen.DecodeTime,
		TokensPerSec:    gen.TokensPerSec,
	}
}

func fallbackOutcome(req shared.GenerateRequest, decodeSrv shared.ServerDescriptor, resp *shared.SingleGenerateResponse) *shared.RequestOutcome {
	return &shared.RequestOutcome{
		RequestID:      req.RequestID,
		Response:       resp.Response,
		Method:         shared.MethodFallback,
		DecodeServerID: decodeSrv.ID,
		DecodeTime:     resp.GenerationTime,
		TotalTime:      resp.GenerationTime,
	}
}

func failedOutcome(req shared.GenerateRequest, errMsg string) *shared.RequestOutcome {
	return &shared.RequestOutcome{
		RequestID: req.RequestID,
		Method:    shared.MethodFailed,
		Error:     errMsg,
	}
}
