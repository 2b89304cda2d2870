package certmatch

import (
	"context"
	"testing"

	"github.com/redth/npm-docker-sync/internal/npm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCertLister struct {
	certs []npm.Certificate
}

func (f *fakeCertLister) ListCertificates(context.Context) ([]npm.Certificate, error) {
	return f.certs, nil
}

func TestMatcher_ExactMatchWins(t *testing.T) {
	m := New(&fakeCertLister{certs: []npm.Certificate{
		{ID: 1, DomainNames: []string{"app.example.com", "www.app.example.com"}},
		{ID: 2, DomainNames: []string{"*.example.com"}},
	}})

	id, ok, err := m.Match(context.Background(), []string{"app.example.com", "www.app.example.com"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestMatcher_PrimaryMatchWhenNoExact(t *testing.T) {
	m := New(&fakeCertLister{certs: []npm.Certificate{
		{ID: 1, DomainNames: []string{"app.example.com"}},
	}})

	id, ok, err := m.Match(context.Background(), []string{"app.example.com", "other.example.com"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestMatcher_WildcardMatch(t *testing.T) {
	m := New(&fakeCertLister{certs: []npm.Certificate{
		{ID: 5, DomainNames: []string{"*.test"}},
	}})

	id, ok, err := m.Match(context.Background(), []string{"svc.test"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, id)
}

func TestMatcher_WildcardDoesNotMatchBareRoot(t *testing.T) {
	m := New(&fakeCertLister{certs: []npm.Certificate{
		{ID: 5, DomainNames: []string{"*.test"}},
	}})

	_, ok, err := m.Match(context.Background(), []string{"test"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatcher_NoMatch(t *testing.T) {
	m := New(&fakeCertLister{certs: []npm.Certificate{
		{ID: 1, DomainNames: []string{"other.example.com"}},
	}})

	_, ok, err := m.Match(context.Background(), []string{"app.example.com"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatcher_CaseInsensitive(t *testing.T) {
	m := New(&fakeCertLister{certs: []npm.Certificate{
		{ID: 1, DomainNames: []string{"App.Example.com"}},
	}})

	id, ok, err := m.Match(context.Background(), []string{"app.example.com"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, id)
}
