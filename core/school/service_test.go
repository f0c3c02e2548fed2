package school_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/school"
	inmemdb "github.com/trezcool/masomo-portal/storage/database/inmem"
)

func TestNewSchool_Validate(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	school.InitValidators(validate, translator)

	tests := []struct {
		slug    string
		wantErr bool
	}{
		{slug: "riverside"},
		{slug: " Riverside-High "},
		{slug: "st-mary-2"},
		{slug: "", wantErr: true},
		{slug: "river side", wantErr: true},
		{slug: "-river", wantErr: true},
		{slug: "river--side", wantErr: true},
		{slug: "école", wantErr: true},
		{slug: "admin", wantErr: true},
		{slug: " Teacher ", wantErr: true},
		{slug: "api", wantErr: true},
		{slug: "auth", wantErr: true},
		{slug: "school-select", wantErr: true},
		{slug: "admin-academy"},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			ns := school.NewSchool{Slug: tt.slug, Name: "Riverside"}
			err := ns.Validate(validate)
			if tt.wantErr {
				var vErrs validator.ValidationErrors
				require.ErrorAs(t, err, &vErrs)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	svc := school.NewService(inmemdb.NewSchoolRepository(inmemdb.Open()))

	riverside, err := svc.Create(ctx, school.NewSchool{Slug: "riverside", Name: "Riverside"})
	require.NoError(t, err)
	assert.True(t, riverside.IsActive)
	_, err = svc.Create(ctx, school.NewSchool{Slug: "hillcrest", Name: "Hillcrest"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, school.NewSchool{Slug: "riverside", Name: "Riverside 2"})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldMap(), "slug")

	got, err := svc.GetBySlug(ctx, " RIVERSIDE ")
	require.NoError(t, err)
	assert.Equal(t, riverside, got)

	_, err = svc.GetBySlug(ctx, "nowhere")
	assert.Equal(t, school.ErrNotFound, err)

	schools, err := svc.QueryActive(ctx)
	require.NoError(t, err)
	require.Len(t, schools, 2)
	assert.Equal(t, "Hillcrest", schools[0].Name)
}
