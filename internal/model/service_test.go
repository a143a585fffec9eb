package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCover(t *testing.T) {
	tests := []struct {
		name     string
		images   []string
		cover    string
		selector string
		want     string
	}{
		{"selector wins", []string{"/a", "/b"}, "/a", "/b", "/b"},
		{"unknown selector keeps current", []string{"/a", "/b"}, "/b", "/zzz", "/b"},
		{"empty cover falls back to first", []string{"/a", "/b"}, "", "", "/a"},
		{"deleted cover falls back to first", []string{"/b"}, "/a", "", "/b"},
		{"no images clears cover", nil, "/a", "", ""},
		{"selector ignored when absent and no images", []string{}, "", "/a", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := Service{Images: tt.images, CoverPhoto: tt.cover}
			svc.ResolveCover(tt.selector)
			assert.Equal(t, tt.want, svc.CoverPhoto)
		})
	}
}

func TestServiceImages(t *testing.T) {
	svc := Service{}
	svc.AppendImages("/a", "/b", "/a", "")
	assert.Equal(t, []string{"/a", "/b"}, svc.Images)

	assert.True(t, svc.RemoveImage("/a"))
	assert.False(t, svc.RemoveImage("/a"))
	assert.Equal(t, []string{"/b"}, svc.Images)
}

func TestServiceClone_DoesNotAlias(t *testing.T) {
	orig := Service{ID: "1", Images: []string{"/a"}}
	cp := orig.Clone()
	cp.Images[0] = "/changed"
	assert.Equal(t, "/a", orig.Images[0])

	empty := Service{}.Clone()
	assert.NotNil(t, empty.Images)
}

func TestCatalogFind(t *testing.T) {
	c := Catalog{Services: []Service{{ID: "a"}, {ID: "b"}}}

	svc, ok := c.Find("b")
	require.True(t, ok)
	assert.Equal(t, "b", svc.ID)
	assert.Equal(t, 1, c.Index("b"))

	_, ok = c.Find("missing")
	assert.False(t, ok)
	assert.Equal(t, -1, c.Index("missing"))
}

func TestCatalogNormalize(t *testing.T) {
	c := Catalog{Services: []Service{{ID: "a"}}}
	c.Normalize()
	assert.NotNil(t, c.Services[0].Images)

	var empty Catalog
	empty.Normalize()
	assert.NotNil(t, empty.Services)
}

func TestValidateFields(t *testing.T) {
	assert.Nil(t, ValidateName("Wiring"))
	assert.NotNil(t, ValidateName("ab"))
	assert.NotNil(t, ValidateName("   ab   "))

	assert.Nil(t, ValidateDescription("Full breaker panel replacement"))
	fe := ValidateDescription("too short")
	require.NotNil(t, fe)
	assert.Equal(t, "description", fe.Field)
}

func TestValidationError(t *testing.T) {
	verr := &ValidationError{}
	assert.NoError(t, verr.OrNil())

	verr.Add(nil)
	verr.Add(ValidateName(""))
	verr.Add(ValidateDescription(""))
	err := verr.OrNil()
	require.Error(t, err)

	var target *ValidationError
	require.True(t, errors.As(err, &target))
	assert.Len(t, target.Fields, 2)
	assert.Contains(t, err.Error(), "name")
	assert.Contains(t, err.Error(), "description")
}

func TestStorageError_MatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := StorageError("writing catalog", cause)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "writing catalog")
}
