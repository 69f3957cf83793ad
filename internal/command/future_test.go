package command

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFuture_CompleteOnce(t *testing.T) {
	f := NewFuture()

	if _, ok := f.Result(); ok {
		t.Fatal("Result() ok = true before Complete")
	}

	if !f.Complete(Success()) {
		t.Fatal("first Complete() = false, want true")
	}
	if f.Complete(Failure("late")) {
		t.Error("second Complete() = true, want false")
	}

	got, ok := f.Result()
	if !ok {
		t.Fatal("Result() ok = false after Complete")
	}
	if got.Status != StatusSuccess {
		t.Errorf("Status = %q, want %q", got.Status, StatusSuccess)
	}
}

func TestFuture_ConcurrentComplete(t *testing.T) {
	f := NewFuture()
	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.Complete(Success()) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("winning Complete() calls = %d, want 1", wins.Load())
	}
}

func TestFuture_Await(t *testing.T) {
	t.Run("returns result when completed later", func(t *testing.T) {
		f := NewFuture()
		go func() {
			time.Sleep(10 * time.Millisecond)
			f.Complete(Failure("relay stuck"))
		}()

		got, err := f.Await(context.Background())
		if err != nil {
			t.Fatalf("Await() error = %v", err)
		}
		if got.Status != StatusFailure || got.Message != "relay stuck" {
			t.Errorf("Await() = %+v, want FAILURE/relay stuck", got)
		}
	})

	t.Run("returns context error on deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := NewFuture().Await(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Await() error = %v, want DeadlineExceeded", err)
		}
	})

	t.Run("completed future returns immediately", func(t *testing.T) {
		got, err := Completed(Success()).Await(context.Background())
		if err != nil || !got.OK() {
			t.Errorf("Await() = %+v, %v", got, err)
		}
	})
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"control", NewRequest("cmd-1"), false},
		{"int", NewIntRequest("cmd-1", 4), false},
		{"double", NewDoubleRequest("cmd-1", 21.5), false},
		{"string", NewStringRequest("cmd-1", "eco"), false},
		{"bool", NewBoolRequest("cmd-1", true), false},
		{"empty value type", Request{CommandID: "cmd-1"}, false},
		{"missing id", NewRequest(""), true},
		{"unknown type", Request{CommandID: "cmd-1", ValueType: "DECIMAL"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestRequest_Value(t *testing.T) {
	tests := []struct {
		req  Request
		want any
	}{
		{NewRequest("c"), nil},
		{NewIntRequest("c", 7), int64(7)},
		{NewDoubleRequest("c", 1.5), 1.5},
		{NewStringRequest("c", "on"), "on"},
		{NewBoolRequest("c", true), true},
	}

	for _, tt := range tests {
		if got := tt.req.Value(); got != tt.want {
			t.Errorf("%s Value() = %v, want %v", tt.req.ValueType, got, tt.want)
		}
	}
}
