/*
codegen_test.go - Contract code generation tests
*/
package contract_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/contract-engine/contract"
	"github.com/warp/contract-engine/contract/store"
)

func codegenFixture(regionName string) (*contract.CodeGenerator, *store.Memory, *contract.PolicyHolder) {
	mem := store.NewMemory()
	mem.AddLocation(contract.Location{ID: "L-R", Name: regionName, Type: "R"})
	mem.AddLocation(contract.Location{ID: "L-D", Name: "District", Type: "D", ParentID: "L-R"})
	holder := &contract.PolicyHolder{ID: "PH-1", Code: "ACME", LocationID: "L-D"}
	mem.AddPolicyHolder(*holder)
	return &contract.CodeGenerator{Store: mem}, mem, holder
}

func TestGenerate_CodeShape(t *testing.T) {
	// GIVEN a holder whose location chain reaches the Brazzaville region
	gen, _, holder := codegenFixture("Brazzaville")

	// WHEN generating for March 2026
	code, err := gen.Generate(context.Background(), holder, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// THEN the code is D + department + MM + YYYY + 6-digit sequence
	assert.Equal(t, "DBZV032026000001", code)
}

func TestGenerate_FoldsDiacritics(t *testing.T) {
	// the region master data spells the department with accents
	gen, _, holder := codegenFixture("Région de la Lékoumou")

	code, err := gen.Generate(context.Background(), holder, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "DLKM032026000001", code)
}

func TestGenerate_SequenceRestartsEveryMonth(t *testing.T) {
	gen, mem, holder := codegenFixture("Pool")
	ctx := context.Background()

	// GIVEN an existing March contract at sequence 7
	require.NoError(t, mem.CreateContract(ctx, &contract.Contract{
		Code:           "DPOL032026000007",
		PolicyHolderID: "PH-1",
		State:          contract.StateDraft,
		DateCreated:    time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
	}))

	// WHEN generating for March and for April
	march, err := gen.Generate(ctx, holder, time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	april, err := gen.Generate(ctx, holder, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// THEN March continues the sequence while April restarts it
	assert.Equal(t, "DPOL032026000008", march)
	assert.Equal(t, "DPOL042026000001", april)
}

func TestGenerate_SkipsCollisions(t *testing.T) {
	gen, mem, holder := codegenFixture("Sangha")
	ctx := context.Background()

	// GIVEN the next two candidate codes are already taken out of band
	// (created in another month so the scan doesn't count them)
	for _, code := range []string{"DSGH052026000001", "DSGH052026000002"} {
		require.NoError(t, mem.CreateContract(ctx, &contract.Contract{
			Code:           code,
			PolicyHolderID: "PH-1",
			State:          contract.StateDraft,
			DateCreated:    time.Date(2026, time.April, 30, 0, 0, 0, 0, time.UTC),
		}))
	}

	// WHEN generating for May
	code, err := gen.Generate(ctx, holder, time.Date(2026, time.May, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// THEN the increment-and-check loop walks past both collisions
	assert.Equal(t, "DSGH052026000003", code)
}

func TestGenerate_NoRegionFails(t *testing.T) {
	// GIVEN a location chain with no region node
	mem := store.NewMemory()
	mem.AddLocation(contract.Location{ID: "L-D", Name: "District", Type: "D"})
	holder := &contract.PolicyHolder{ID: "PH-1", LocationID: "L-D"}
	mem.AddPolicyHolder(*holder)
	gen := &contract.CodeGenerator{Store: mem}

	_, err := gen.Generate(context.Background(), holder, time.Now())

	var cfgErr *contract.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
