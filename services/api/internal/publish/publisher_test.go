package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImageHost struct {
	link  string
	err   error
	calls int
}

func (f *fakeImageHost) PublishImage(context.Context, string) (string, error) {
	f.calls++
	return f.link, f.err
}

type fakeDocumentHost struct {
	link  string
	err   error
	calls int
}

func (f *fakeDocumentHost) PublishDocument(context.Context, string) (string, error) {
	f.calls++
	return f.link, f.err
}

func TestPublishBothLegs(t *testing.T) {
	img := &fakeImageHost{link: "https://i.imgur.com/a.jpg"}
	doc := &fakeDocumentHost{link: "https://drive.google.com/file/d/1/view"}
	p, err := New(img, doc, 0)
	require.NoError(t, err)

	links, err := p.Publish(context.Background(), "a.jpg", "a.csv")
	require.NoError(t, err)
	assert.Equal(t, Links{ImageURL: img.link, DataURL: doc.link}, links)
}

func TestPublishImageFailureSkipsData(t *testing.T) {
	img := &fakeImageHost{err: &PublishError{Status: 429, Detail: "rate limited"}}
	doc := &fakeDocumentHost{link: "unused"}
	p, err := New(img, doc, 0)
	require.NoError(t, err)

	links, err := p.Publish(context.Background(), "a.jpg", "a.csv")
	require.ErrorIs(t, err, ErrPublishFailed)
	assert.Equal(t, Links{}, links)
	assert.Equal(t, 0, doc.calls, "data leg must not run after image failure")

	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, LegImage, perr.Leg)
	assert.Equal(t, 429, perr.Status)
}

func TestPublishDataFailureDiscardsImage(t *testing.T) {
	img := &fakeImageHost{link: "https://i.imgur.com/a.jpg"}
	doc := &fakeDocumentHost{err: errors.New("quota exceeded")}
	p, err := New(img, doc, 0)
	require.NoError(t, err)

	links, err := p.Publish(context.Background(), "a.jpg", "a.csv")
	require.ErrorIs(t, err, ErrPublishFailed)
	assert.Empty(t, links.ImageURL)
	assert.Empty(t, links.DataURL)

	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, LegData, perr.Leg)
	assert.Equal(t, "quota exceeded", perr.Detail)
}

func TestNewRequiresHosts(t *testing.T) {
	_, err := New(nil, &fakeDocumentHost{}, 0)
	require.Error(t, err)
	_, err = New(&fakeImageHost{}, nil, 0)
	require.Error(t, err)
}
