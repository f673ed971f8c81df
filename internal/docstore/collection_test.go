package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteeight/site/internal/model"
)

func newTeamCollection(repo *memoryRepo) *Collection[model.TeamMember, *model.TeamMember] {
	return NewCollection[model.TeamMember, *model.TeamMember](
		model.CollectionTeam, NewStore(repo, nil),
		model.Decode[model.TeamMember], model.Encode[model.TeamMember],
	)
}

func TestCollection_Create_InvalidEntity_MakesNoStoreCall(t *testing.T) {
	repo := newMemoryRepo()
	team := newTeamCollection(repo)

	_, err := team.Create(context.Background(), model.TeamMember{Name: "Sarah Johnson"})

	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, model.ErrCodeValidationFailed, apiErr.Code)
	assert.Zero(t, repo.writeCalls())
}

func TestCollection_CreateAndGet_RoundTrip(t *testing.T) {
	team := newTeamCollection(newMemoryRepo())
	ctx := context.Background()

	id, err := team.Create(ctx, model.TeamMember{Name: "Sarah Johnson", Role: "CEO"})
	require.NoError(t, err)

	got, err := team.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "SJ", got.Initials)
	assert.NotNil(t, got.CreatedAt)
}

func TestCollection_Get_Missing_ReturnsDocumentNotFound(t *testing.T) {
	team := newTeamCollection(newMemoryRepo())

	_, err := team.Get(context.Background(), "nope")

	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, model.ErrCodeDocumentNotFound, apiErr.Code)
}

func TestCollection_Patch_WritesOnlyPatchedFields(t *testing.T) {
	repo := newMemoryRepo()
	team := newTeamCollection(repo)
	ctx := context.Background()

	id, err := team.Create(ctx, model.TeamMember{Name: "Sarah Johnson", Role: "CEO", Bio: "old"})
	require.NoError(t, err)

	require.NoError(t, team.Patch(ctx, id, json.RawMessage(`{"bio":"  new bio  ","id":"hijack"}`)))

	doc := repo.docs[key(model.CollectionTeam, id)]
	var fields map[string]any
	require.NoError(t, json.Unmarshal(doc.Data, &fields))
	assert.Equal(t, "new bio", fields["bio"])
	assert.Equal(t, "CEO", fields["role"])
	assert.NotContains(t, fields, "id")
}

func TestCollection_Patch_InvalidResult_IsRejected(t *testing.T) {
	repo := newMemoryRepo()
	team := newTeamCollection(repo)
	ctx := context.Background()

	id, err := team.Create(ctx, model.TeamMember{Name: "Sarah Johnson", Role: "CEO"})
	require.NoError(t, err)
	before := repo.writeCalls()

	err = team.Patch(ctx, id, json.RawMessage(`{"role":""}`))

	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, model.ErrCodeValidationFailed, apiErr.Code)
	assert.Equal(t, before, repo.writeCalls())
}

func TestCollection_Patch_ClearedOptionalField_WritesNull(t *testing.T) {
	repo := newMemoryRepo()
	team := newTeamCollection(repo)
	ctx := context.Background()

	id, err := team.Create(ctx, model.TeamMember{Name: "Sarah Johnson", Role: "CEO", Bio: "bio"})
	require.NoError(t, err)

	require.NoError(t, team.Patch(ctx, id, json.RawMessage(`{"bio":""}`)))

	got, err := team.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.Bio)
}

func TestCollection_Patch_NonObject_ReturnsInvalidRequest(t *testing.T) {
	team := newTeamCollection(newMemoryRepo())

	err := team.Patch(context.Background(), "any", json.RawMessage(`["x"]`))

	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, model.ErrCodeInvalidRequest, apiErr.Code)
}
