package ner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/piiguard/internal/classifier"
	"github.com/dativo-io/piiguard/internal/testutil"
)

func TestCachedModelHitsAndMisses(t *testing.T) {
	fake := testutil.JohnSmithNER()
	c := NewCachedModel(fake, "fake", time.Minute)
	t.Cleanup(c.Close)

	ctx := context.Background()
	first, err := c.Detect(ctx, testutil.JohnSmithText, "en")
	require.NoError(t, err)
	second, err := c.Detect(ctx, testutil.JohnSmithText, "en")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.Calls())

	_, err = c.Detect(ctx, testutil.JohnSmithText, "de")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Calls(), "language is part of the key")

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.Equal(t, 2, stats.Size)
}

func TestCachedModelReturnsCopies(t *testing.T) {
	c := NewCachedModel(testutil.JohnSmithNER(), "fake", time.Minute)
	t.Cleanup(c.Close)

	got, err := c.Detect(context.Background(), testutil.JohnSmithText, "en")
	require.NoError(t, err)
	got[0].EntityType = "MUTATED"

	again, err := c.Detect(context.Background(), testutil.JohnSmithText, "en")
	require.NoError(t, err)
	assert.Equal(t, "PERSON", again[0].EntityType)
}

func TestCachedModelDoesNotCacheErrors(t *testing.T) {
	fake := &testutil.FakeNERModel{Err: classifier.ErrModelUnavailable}
	c := NewCachedModel(fake, "fake", time.Minute)
	t.Cleanup(c.Close)

	for i := 0; i < 2; i++ {
		_, err := c.Detect(context.Background(), "x", "en")
		require.ErrorIs(t, err, classifier.ErrModelUnavailable)
	}
	assert.Equal(t, 2, fake.Calls())
}

func TestCachedModelExpiry(t *testing.T) {
	fake := testutil.JohnSmithNER()
	c := NewCachedModel(fake, "fake", 30*time.Millisecond)
	t.Cleanup(c.Close)

	_, err := c.Detect(context.Background(), testutil.JohnSmithText, "en")
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = c.Detect(context.Background(), testutil.JohnSmithText, "en")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Calls())
}

func TestCachedModelConcurrent(t *testing.T) {
	c := NewCachedModel(testutil.JohnSmithNER(), "fake", time.Minute)
	t.Cleanup(c.Close)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Detect(context.Background(), testutil.JohnSmithText, "en")
			assert.NoError(t, err)
			assert.Len(t, got, 1)
		}()
	}
	wg.Wait()
}

func TestCachedModelCallerCancelDoesNotFailOthers(t *testing.T) {
	fake := testutil.JohnSmithNER()
	fake.Release = make(chan struct{})
	c := NewCachedModel(fake, "fake", time.Minute)
	t.Cleanup(c.Close)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Detect(ctxA, testutil.JohnSmithText, "en")
		errA <- err
	}()
	require.Eventually(t, func() bool { return fake.Calls() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		got []classifier.Detection
		err error
	}
	resB := make(chan result, 1)
	go func() {
		got, err := c.Detect(context.Background(), testutil.JohnSmithText, "en")
		resB <- result{got, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		require.ErrorIs(t, err, classifier.ErrModelUnavailable)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(fake.Release)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Len(t, r.got, 1)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, 1, fake.Calls(), "both callers shared one backend call")
}

func TestCachedModelTimeoutStillApplies(t *testing.T) {
	c := NewCachedModel(&testutil.FakeNERModel{Block: true}, "fake", time.Minute)
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Detect(ctx, "x", "en")
	require.ErrorIs(t, err, classifier.ErrModelTimeout)
}

func TestCachedModelHealth(t *testing.T) {
	srv := testutil.NewSidecarServer(nil, 0)
	t.Cleanup(srv.Close)

	c := NewCachedModel(NewSidecarModel(srv.URL), "sidecar", 0)
	t.Cleanup(c.Close)
	require.NoError(t, c.Health(context.Background()))

	plain := NewCachedModel(testutil.JohnSmithNER(), "fake", 0)
	t.Cleanup(plain.Close)
	require.NoError(t, plain.Health(context.Background()), "models without health checks are healthy")
}

func TestMapLabel(t *testing.T) {
	assert.Equal(t, "PERSON", mapLabel(DefaultLabelMap, "per"))
	assert.Equal(t, "LOCATION", mapLabel(DefaultLabelMap, " GPE "))
	assert.Equal(t, "DATE_TIME", mapLabel(DefaultLabelMap, "DATE"))
	assert.Equal(t, "MISC", mapLabel(DefaultLabelMap, "misc"))
}
