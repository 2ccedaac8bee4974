package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrimaryImageURL(t *testing.T) {
	tests := []struct {
		name  string
		urls  []string
		kinds []MediaKind
		want  string
	}{
		{"empty", nil, nil, ""},
		{"first image wins", []string{"v1", "i1", "i2"}, []MediaKind{MediaVideo, MediaImage, MediaImage}, "i1"},
		{"videos only", []string{"v1", "v2"}, []MediaKind{MediaVideo, MediaVideo}, "v1"},
		{"image first", []string{"i1", "v1"}, []MediaKind{MediaImage, MediaVideo}, "i1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PrimaryImageURL(tt.urls, tt.kinds))
		})
	}
}

func TestCategoryKnown(t *testing.T) {
	assert.True(t, CategoryBNB.Known())
	assert.True(t, CategoryApartment.Known())
	assert.False(t, Category("bnb").Known())
	assert.False(t, Category("").Known())
}

func TestRouteForRole(t *testing.T) {
	assert.Equal(t, RouteAddProperty, RouteForRole(RoleAdmin))
	assert.Equal(t, RouteMain, RouteForRole(RoleUser))
	assert.Equal(t, RouteMain, RouteForRole(""))
}

func TestCredentialExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&Credential{}).Expired(now))
	assert.False(t, (&Credential{ExpiresAt: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&Credential{ExpiresAt: now.Add(-time.Minute)}).Expired(now))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "Property not deleted", Message(fmt.Errorf("%w: boom", ErrDeleteFailed)))
	assert.Equal(t, "Failed to load properties", Message(fmt.Errorf("%w: x", ErrFetchFailed)))
	assert.Equal(t, "Login success, but failed to fetch user role.",
		Message(fmt.Errorf("%w: %w", ErrProfileFetch, ErrNetwork)))
	assert.Equal(t, "plain", Message(errors.New("plain")))
}

func TestValidateDraft(t *testing.T) {
	full := Listing{Name: "Lakeview Flat", Price: "15000", AgentName: "Jo"}
	assert.NoError(t, full.ValidateDraft(1))

	err := full.ValidateDraft(0)
	assert.ErrorIs(t, err, ErrValidation)

	missing := Listing{Name: "Lakeview Flat", Price: "  "}
	err = missing.ValidateDraft(2)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, Message(err), "required")
}
