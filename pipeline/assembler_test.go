package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(ctx context.Context, c *Context) error {
	return nil
}

func desc(name string, stage Stage, order int) Descriptor {
	return Descriptor{Name: name, Stage: stage, Order: order, Handle: noopHandler}
}

func names(descs []Descriptor) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.Name
	}
	return out
}

func TestAssembleSortsByOrder(t *testing.T) {
	plan, err := Assemble([]Descriptor{
		desc("c", StagePrepareTokenRequest, 30),
		desc("a", StagePrepareTokenRequest, 10),
		desc("b", StagePrepareTokenRequest, 20),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names(plan.Sequence(StagePrepareTokenRequest)))
}

func TestAssembleStableSortPreservesRegistrationOrder(t *testing.T) {
	descs := []Descriptor{
		desc("first", StagePrepareTokenRequest, 10),
		desc("second", StagePrepareTokenRequest, 10),
		desc("third", StagePrepareTokenRequest, 10),
		desc("early", StagePrepareTokenRequest, -10),
	}

	plan, err := Assemble(descs)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "first", "second", "third"},
		names(plan.Sequence(StagePrepareTokenRequest)))

	// Re-assembling the same input yields an identical sequence.
	plan2, err := Assemble(descs)
	require.NoError(t, err)
	assert.Equal(t, names(plan.Sequence(StagePrepareTokenRequest)),
		names(plan2.Sequence(StagePrepareTokenRequest)))
}

func TestAssembleSeparatesStages(t *testing.T) {
	plan, err := Assemble([]Descriptor{
		desc("token", StagePrepareTokenRequest, 0),
		desc("config", StagePrepareConfigurationRequest, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"token"}, names(plan.Sequence(StagePrepareTokenRequest)))
	assert.Equal(t, []string{"config"}, names(plan.Sequence(StagePrepareConfigurationRequest)))
	assert.Empty(t, plan.Sequence(StagePrepareIntrospectionRequest))
}

func TestAssembleRejectsConflictingTerminalHandlers(t *testing.T) {
	send := desc("send_http_request", StageApplyConfigurationRequest, 100)
	send.Terminal = true
	static := desc("use_static_configuration", StageApplyConfigurationRequest, 0)
	static.Terminal = true

	_, err := Assemble([]Descriptor{send, static})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflicting terminal handlers")
}

func TestAssembleAllowsOneTerminalHandler(t *testing.T) {
	send := desc("send_http_request", StageApplyConfigurationRequest, 100)
	send.Terminal = true

	_, err := Assemble([]Descriptor{send, desc("other", StageApplyConfigurationRequest, 0)})
	assert.NoError(t, err)
}

func TestAssembleRequiredStages(t *testing.T) {
	_, err := Assemble(
		[]Descriptor{desc("token", StagePrepareTokenRequest, 0)},
		WithRequiredStages(StagePrepareIntrospectionRequest),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required stage prepare_introspection_request")

	_, err = Assemble(
		[]Descriptor{desc("token", StagePrepareTokenRequest, 0)},
		WithRequiredStages(StagePrepareTokenRequest),
	)
	assert.NoError(t, err)
}

func TestAssembleRejectsUnknownStage(t *testing.T) {
	_, err := Assemble([]Descriptor{desc("bad", StageUnknown, 0)})
	assert.Error(t, err)

	_, err = Assemble([]Descriptor{desc("worse", Stage(200), 0)})
	assert.Error(t, err)
}

func TestAssembleRejectsNilHandler(t *testing.T) {
	_, err := Assemble([]Descriptor{{Name: "empty", Stage: StagePrepareTokenRequest}})
	assert.Error(t, err)
}
