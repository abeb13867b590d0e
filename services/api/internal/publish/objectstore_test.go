package publish

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	objects     map[string][]byte
	contentType map[string]string
	putErr      error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}, contentType: map[string]string{}}
}

func (f *fakeObjectStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = b
	f.contentType[key] = contentType
	return nil
}

func (f *fakeObjectStore) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	return "https://s3.local/bucket/" + key + "?expires=" + expiry.String(), nil
}

func fixedNow() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }

func TestBucketHostPresigned(t *testing.T) {
	store := newFakeObjectStore()
	host, err := NewBucketHost(store, "", 0)
	require.NoError(t, err)
	host.now = fixedNow

	link, err := host.PublishDocument(context.Background(), writeTemp(t, "out.csv", "a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, "https://s3.local/bucket/artifacts/2024/03/09/out.csv?expires=168h0m0s", link)
	assert.Equal(t, "a,b\n", string(store.objects["artifacts/2024/03/09/out.csv"]))
	assert.Equal(t, "text/csv", store.contentType["artifacts/2024/03/09/out.csv"])
}

func TestBucketHostPublicBaseURL(t *testing.T) {
	host, err := NewBucketHost(newFakeObjectStore(), "https://cdn.example/wild/", time.Hour)
	require.NoError(t, err)
	host.now = fixedNow

	link, err := host.PublishDocument(context.Background(), writeTemp(t, "out 1.csv", "x"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/wild/artifacts/2024/03/09/out%201.csv", link)
}

func TestBucketHostPutFailure(t *testing.T) {
	store := newFakeObjectStore()
	store.putErr = errors.New("bucket unavailable")
	host, err := NewBucketHost(store, "", 0)
	require.NoError(t, err)

	_, err = host.PublishDocument(context.Background(), writeTemp(t, "out.csv", "x"))
	require.ErrorIs(t, err, ErrPublishFailed)
	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, LegData, perr.Leg)
}
