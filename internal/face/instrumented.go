package face

import (
	"context"
	"time"

	"github.com/saturnino-fabrica-de-software/facematch/internal/audit"
	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/metrics"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider"
)

const (
	opExtract = "extract"
	opCompare = "compare"
	opRelease = "release"
)

// Instrument returns a Decorator recording call metrics and audit events.
// Successful comparisons are not audited; a search performs one per reference.
func Instrument(auditLogger audit.Logger) Decorator {
	return func(p provider.FaceProvider) provider.FaceProvider {
		inst := &instrumented{next: p, audit: auditLogger}
		if releaser, ok := p.(provider.Releaser); ok {
			return &instrumentedReleaser{instrumented: inst, releaser: releaser}
		}
		return inst
	}
}

type instrumented struct {
	next  provider.FaceProvider
	audit audit.Logger
}

func (i *instrumented) Type() domain.ProviderType {
	return i.next.Type()
}

func (i *instrumented) Extract(ctx context.Context, image []byte) (domain.FaceID, error) {
	start := time.Now()
	id, err := i.next.Extract(ctx, image)
	i.observe(opExtract, start, err)

	audit.Record(ctx, i.audit, audit.EventFaceExtracted, string(i.next.Type()), "", err, nil)
	return id, err
}

func (i *instrumented) Compare(ctx context.Context, query, reference domain.FaceID, referenceImage provider.ImageFunc) (float64, error) {
	start := time.Now()
	score, err := i.next.Compare(ctx, query, reference, referenceImage)
	i.observe(opCompare, start, err)

	if err != nil {
		audit.Record(ctx, i.audit, audit.EventFaceCompared, string(i.next.Type()), "", err, nil)
	}
	return score, err
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	name := string(i.next.Type())
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.ProviderCalls.WithLabelValues(name, op, outcome).Inc()
	metrics.ProviderDuration.WithLabelValues(name, op).Observe(time.Since(start).Seconds())
}

// Unwrap returns the decorated provider.
func (i *instrumented) Unwrap() provider.FaceProvider {
	return i.next
}

// instrumentedReleaser is used for providers that hold indexed faces.
type instrumentedReleaser struct {
	*instrumented
	releaser provider.Releaser
}

func (i *instrumentedReleaser) Release(ctx context.Context, id domain.FaceID) error {
	start := time.Now()
	err := i.releaser.Release(ctx, id)
	i.observe(opRelease, start, err)
	return err
}
