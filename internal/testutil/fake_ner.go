package testutil

import (
	"context"
	"sync/atomic"

	"github.com/dativo-io/piiguard/internal/classifier"
)

// FakeNERModel is a classifier.NERModel returning canned detections.
type FakeNERModel struct {
	Detections []classifier.Detection
	Err        error
	// Block makes Detect wait for ctx cancellation.
	Block bool
	// Release, when set, holds Detect until it is closed or ctx ends.
	Release chan struct{}

	calls atomic.Int32
}

// Detect implements classifier.NERModel.
func (f *FakeNERModel) Detect(ctx context.Context, _, _ string) ([]classifier.Detection, error) {
	f.calls.Add(1)
	if f.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.Release != nil {
		select {
		case <-f.Release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]classifier.Detection(nil), f.Detections...), nil
}

// Calls returns how many times Detect was called.
func (f *FakeNERModel) Calls() int { return int(f.calls.Load()) }

// JohnSmithText is the reference sentence used across engine tests.
const JohnSmithText = "My name is John Smith and my email is john@example.com."

// JohnSmithNER returns a model that tags "John Smith" in JohnSmithText.
func JohnSmithNER() *FakeNERModel {
	return &FakeNERModel{Detections: []classifier.Detection{
		{EntityType: "PERSON", Start: 11, End: 21, Score: 0.85},
	}}
}
