package main

import (
	"testing"
	"time"
)

func sampleAt(ch Channel, at time.Time, temp float64) RawSample {
	return RawSample{CaptureTime: at, Channel: ch, Temperature: &temp}
}

func TestSampleQueuePushDrainOrder(t *testing.T) {
	q := NewSampleQueue()
	base := time.Now()

	for i := 0; i < 5; i++ {
		q.Push(sampleAt(ChannelA, base.Add(time.Duration(i)*time.Second), float64(100+i)))
	}
	if q.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", q.Len())
	}

	batch := q.Drain()
	if len(batch) != 5 {
		t.Fatalf("Drain() returned %d samples, want 5", len(batch))
	}
	for i, s := range batch {
		if *s.Temperature != float64(100+i) {
			t.Errorf("sample %d out of order: got %v, want %v", i, *s.Temperature, 100+i)
		}
	}
}

func TestSampleQueueDrainEmpties(t *testing.T) {
	q := NewSampleQueue()
	q.Push(sampleAt(ChannelB, time.Now(), 250))

	if got := q.Drain(); len(got) != 1 {
		t.Fatalf("first Drain() returned %d samples, want 1", len(got))
	}
	if got := q.Drain(); got != nil {
		t.Errorf("second Drain() = %v, want nil", got)
	}
	if q.Len() != 0 {
		t.Errorf("Len() after drain = %d, want 0", q.Len())
	}
}

func TestSampleQueuePushAfterDrain(t *testing.T) {
	q := NewSampleQueue()
	q.Push(sampleAt(ChannelA, time.Now(), 1))
	q.Drain()
	q.Push(sampleAt(ChannelA, time.Now(), 2))

	batch := q.Drain()
	if len(batch) != 1 || *batch[0].Temperature != 2 {
		t.Errorf("expected single sample with value 2, got %+v", batch)
	}
}
