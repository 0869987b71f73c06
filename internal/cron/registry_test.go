package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresJobs(t *testing.T) {
	registry, err := NewRegistry(nil)
	require.NoError(t, err)
	jobA := &stubJob{name: "pending-payment-expiry"}
	jobB := &stubJob{name: "outbox-retention"}
	require.NoError(t, registry.Register(jobA))
	require.NoError(t, registry.Register(jobB))

	jobs := registry.Jobs()
	require.Equal(t, []Job{jobA, jobB}, jobs)
	require.Equal(t, []string{"outbox-retention", "pending-payment-expiry"}, registry.Names())

	// callers cannot mutate the internal slice
	jobs[0] = nil
	require.NotNil(t, registry.Jobs()[0])
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "outbox-retention"}, &stubJob{name: "outbox-retention"})
	require.ErrorContains(t, err, `"outbox-retention" registered twice`)

	registry, err := NewRegistry()
	require.NoError(t, err)
	require.ErrorContains(t, registry.Register(&stubJob{name: "  "}), "name required")
	require.Empty(t, registry.Jobs())
}

func TestRegistrySelect(t *testing.T) {
	expiry := &stubJob{name: "pending-payment-expiry"}
	retention := &stubJob{name: "outbox-retention"}
	registry, err := NewRegistry(expiry, retention)
	require.NoError(t, err)

	all, err := registry.Select()
	require.NoError(t, err)
	require.Len(t, all.Jobs(), 2)

	only, err := registry.Select(" outbox-retention ", "")
	require.NoError(t, err)
	require.Equal(t, []Job{retention}, only.Jobs())

	_, err = registry.Select("pending-payment-expry")
	require.ErrorContains(t, err, `unknown cron job "pending-payment-expry"`)
	require.ErrorContains(t, err, "outbox-retention, pending-payment-expiry")
}
