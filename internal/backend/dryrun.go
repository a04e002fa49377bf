package backend

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// dryRunNamespace seeds deterministic application IDs
var dryRunNamespace = uuid.MustParse("6f1c2a4e-8d3b-5e7f-9a0b-1c2d3e4f5a6b")

// DryRun accepts claims without contacting any service. The same key always
// produces the same identifiers and the same success or failure.
type DryRun struct {
	failureRate float64
	latency     time.Duration
}

// NewDryRun creates a dry-run backend failing roughly failureRate of claims
func NewDryRun(failureRate float64, latency time.Duration) *DryRun {
	return &DryRun{failureRate: failureRate, latency: latency}
}

// Name returns the backend name
func (d *DryRun) Name() string {
	return "dryrun"
}

// Submit simulates a submission
func (d *DryRun) Submit(ctx context.Context, claim model.ClaimRecord, creds *Credentials) (Submission, error) {
	if d.latency > 0 {
		select {
		case <-ctx.Done():
			return Submission{}, ctx.Err()
		case <-time.After(d.latency):
		}
	} else if err := ctx.Err(); err != nil {
		return Submission{}, err
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(claim.Key))
	sum := h.Sum64()

	if float64(sum%10000)/10000 < d.failureRate {
		return Submission{}, &Error{Kind: model.ErrorRejected, StatusCode: 400, Message: "dry run: simulated rejection"}
	}

	return Submission{
		ApplicationID: uuid.NewSHA1(dryRunNamespace, []byte(claim.Key)).String(),
		CaseID:        fmt.Sprintf("NTN-%d-ABS-01", sum%1000000),
	}, nil
}
